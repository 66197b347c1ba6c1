package wsrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage)

type WSRouter struct {
	routes   map[string]HandlerFunc
	notFound HandlerFunc
}

func New() *WSRouter {
	return &WSRouter{routes: make(map[string]HandlerFunc)}
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// NotFound sets the handler for message types without a route. Such messages
// are dropped when it is not set.
func (r *WSRouter) NotFound(handler HandlerFunc) {
	r.notFound = handler
}

// ServeConn routes incoming messages until the connection fails or ctx is
// done. The connection is closed on return.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
		if handler, exists := r.routes[msg.Type]; exists {
			handler(msgCtx, conn, msg.Payload)
		} else if r.notFound != nil {
			r.notFound(msgCtx, conn, msg.Payload)
		}
	}
}

// Write sends a typed message. Callers serialize writes on the same conn.
func Write(conn *websocket.Conn, messageType string, payload any) error {
	msg := message{Type: messageType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		msg.Payload = data
	}

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}
