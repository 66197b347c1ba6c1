package wsplayer

import "github.com/sharetube/client/internal/domain"

// outbound
const (
	typeCreate  = "create"
	typeLoad    = "load"
	typePlay    = "play"
	typePause   = "pause"
	typeSeek    = "seek"
	typeVolume  = "volume"
	typeDestroy = "destroy"
)

// inbound
const (
	typeReady        = "ready"
	typeStateChanged = "state_changed"
	typeStatus       = "status"
)

type instancePayload struct {
	InstanceID string `json:"instance_id"`
}

type createPayload struct {
	InstanceID string  `json:"instance_id"`
	VideoID    string  `json:"video_id"`
	StartAt    float64 `json:"start_at"`
	Autoplay   bool    `json:"autoplay"`
}

type loadPayload struct {
	InstanceID string  `json:"instance_id"`
	VideoID    string  `json:"video_id"`
	At         float64 `json:"at"`
}

type seekPayload struct {
	InstanceID string  `json:"instance_id"`
	At         float64 `json:"at"`
	AllowAhead bool    `json:"allow_ahead"`
}

type volumePayload struct {
	InstanceID string `json:"instance_id"`
	Volume     int    `json:"volume"`
}

type stateChangedPayload struct {
	InstanceID string             `json:"instance_id"`
	State      domain.PlayerState `json:"state"`
}

type statusPayload struct {
	InstanceID  string             `json:"instance_id"`
	CurrentTime float64            `json:"current_time"`
	Duration    float64            `json:"duration"`
	State       domain.PlayerState `json:"state"`
}
