package roomservice

import (
	"errors"
	"fmt"
)

// ServiceError is an explicit rejection returned by the Room Service, e.g.
// "No next video". It is neither transient nor a missing room.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("room service rejected request with status %d", e.Status)
	}

	return e.Message
}

// Message extracts a user-facing message from err, falling back to def.
func Message(err error, def string) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}

	return def
}

type errorBody struct {
	Error string `json:"error"`
}
