package wsrouter

import "context"

type ctxKey string

const (
	messageTypeKey ctxKey = "message_type"
)

// GetMessageTypeFromCtx returns the type of the message being handled, or an
// empty string outside a handler.
func GetMessageTypeFromCtx(ctx context.Context) string {
	msgType, _ := ctx.Value(messageTypeKey).(string)
	return msgType
}
