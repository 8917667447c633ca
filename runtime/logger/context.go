package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// extracted by ContextHandler and added to every record logged with the context.
const (
	// ContextKeyConversationID identifies the conversation a channel serves.
	ContextKeyConversationID contextKey = "conversation_id"

	// ContextKeyConnectionID identifies one channel instance. A conversation
	// opened twice gets two connection IDs.
	ContextKeyConnectionID contextKey = "connection_id"

	// ContextKeyRequestID identifies one outbound prompt and its response stream.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeySubject is the signed-in subject (the access token's sub claim).
	ContextKeySubject contextKey = "subject"

	// ContextKeyComponent names the engine component (auth, stream, api).
	ContextKeyComponent contextKey = "component"
)

// allContextKeys lists all context keys extracted by the handler, in output order.
var allContextKeys = []contextKey{
	ContextKeyComponent,
	ContextKeySubject,
	ContextKeyConversationID,
	ContextKeyConnectionID,
	ContextKeyRequestID,
}

// WithConversationID returns a new context with the conversation ID set.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyConversationID, id)
}

// WithConnectionID returns a new context with the connection ID set.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyConnectionID, id)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

// WithSubject returns a new context with the subject set.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}

// WithComponent returns a new context with the component name set.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, ContextKeyComponent, component)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	Component      string
	Subject        string
	ConversationID string
	ConnectionID   string
	RequestID      string
}

// WithLoggingContext sets every non-empty field of fields on ctx.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.Component != "" {
		ctx = WithComponent(ctx, fields.Component)
	}
	if fields.Subject != "" {
		ctx = WithSubject(ctx, fields.Subject)
	}
	if fields.ConversationID != "" {
		ctx = WithConversationID(ctx, fields.ConversationID)
	}
	if fields.ConnectionID != "" {
		ctx = WithConnectionID(ctx, fields.ConnectionID)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	return ctx
}

// ExtractLoggingFields returns the logging fields stored in ctx.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	str := func(k contextKey) string {
		s, _ := ctx.Value(k).(string)
		return s
	}
	return LoggingFields{
		Component:      str(ContextKeyComponent),
		Subject:        str(ContextKeySubject),
		ConversationID: str(ContextKeyConversationID),
		ConnectionID:   str(ContextKeyConnectionID),
		RequestID:      str(ContextKeyRequestID),
	}
}
