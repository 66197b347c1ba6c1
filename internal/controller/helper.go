package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sharetube/client/internal/domain"
	"github.com/sharetube/client/internal/roomservice"
	"github.com/sharetube/client/internal/service/gate"
)

const maxBodyBytes = 1 << 20

type envelope map[string]any

func (c controller) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must contain a single JSON object")
	}

	return nil
}

// readValid decodes the body into dst and validates it, writing the error
// response itself when either step fails.
func (c controller) readValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := c.readJSON(w, r, dst); err != nil {
		c.logger.DebugContext(r.Context(), "failed to read json", "error", err)
		c.writeJSON(w, r, http.StatusBadRequest, envelope{"error": err.Error()})
		return false
	}

	if fields, ok := c.validate.Validate(dst); !ok {
		c.writeJSON(w, r, http.StatusBadRequest, envelope{"errors": fields})
		return false
	}

	return true
}

func (c controller) writeJSON(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write response", "error", err)
	}
}

func (c controller) writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	c.writeJSON(w, r, status, envelope{"data": data})
}

// writeError maps err onto the control API status codes.
func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	var se *roomservice.ServiceError

	switch {
	case errors.As(err, &ve):
		c.writeJSON(w, r, http.StatusBadRequest, envelope{"errors": ve.Fields})
	case errors.Is(err, gate.ErrNoSession):
		c.writeJSON(w, r, http.StatusConflict, envelope{"error": gate.ErrNoSession.Error()})
	case errors.Is(err, gate.ErrActionInFlight):
		c.writeJSON(w, r, http.StatusTooManyRequests, envelope{"error": gate.ErrActionInFlight.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.writeJSON(w, r, http.StatusNotFound, envelope{"error": domain.ErrNotFound.Error()})
	case errors.As(err, &se):
		c.writeJSON(w, r, http.StatusUnprocessableEntity, envelope{"error": se.Message})
	case errors.Is(err, domain.ErrTransient):
		c.writeJSON(w, r, http.StatusServiceUnavailable, envelope{"error": "room service unavailable"})
	default:
		c.logger.ErrorContext(r.Context(), "unexpected error", "error", err)
		c.writeJSON(w, r, http.StatusInternalServerError, envelope{"error": "internal error"})
	}
}
