package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/AltairaLabs/convostream/runtime/conversation"
)

// Conversation is a conversation summary.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
}

// Message is one stored message.
type Message struct {
	ID               string    `json:"id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	QuestionImageURL *string   `json:"question_image_url"`
	AnswerImageURL   *string   `json:"answer_image_url"`
	YouTubeLink      *string   `json:"youtube_link"`
	CreatedAt        Timestamp `json:"created_at"`
}

// ConversationWithMessages is a conversation with its stored history.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Turns converts the stored messages into log turns, in order. Any role
// other than "user" is treated as the model. Empty reference strings are
// dropped.
func (c ConversationWithMessages) Turns() []conversation.Turn {
	turns := make([]conversation.Turn, 0, len(c.Messages))
	for _, m := range c.Messages {
		role := conversation.RoleModel
		if m.Role == string(conversation.RoleUser) {
			role = conversation.RoleUser
		}
		turns = append(turns, conversation.Turn{
			Role:             role,
			Text:             m.Content,
			QuestionImageRef: nonEmpty(m.QuestionImageURL),
			AnswerImageRef:   nonEmpty(m.AnswerImageURL),
			VideoRef:         nonEmpty(m.YouTubeLink),
		})
	}
	return turns
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

// Timestamp decodes the service's timestamps, which may omit the zone.
// A timestamp without a zone is read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
