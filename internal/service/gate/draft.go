package gate

import "sync"

// Draft is the chat input buffer.
type Draft struct {
	mu   sync.Mutex
	text string
}

func (d *Draft) Set(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.text = text
}

func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.text
}

// take returns the draft and empties it.
func (d *Draft) take() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	text := d.text
	d.text = ""
	return text
}
