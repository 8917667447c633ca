// Package conversation holds the ordered message log of one conversation.
//
// A Log is append-only. Only its last model turn may change: its text grows
// while a response streams, and its media references accept values until the
// next user turn is appended or the log is sealed. A Log is not safe for
// concurrent use; its owner serializes access.
package conversation

import (
	"github.com/AltairaLabs/convostream/runtime/frame"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message in the conversation.
type Turn struct {
	Role             Role
	Text             string
	QuestionImageRef *string
	AnswerImageRef   *string
	VideoRef         *string
}

// Log is the ordered message log.
type Log struct {
	turns []Turn

	// textOpen is set while the last turn is a model turn receiving text.
	textOpen bool
	// refsOpen is set while the last turn is a model turn accepting metadata.
	refsOpen bool
}

// NewLog returns a log seeded with history. Seeded turns are immutable.
func NewLog(history ...Turn) *Log {
	return &Log{turns: cloneTurns(history)}
}

// AppendUser seals the current model turn and appends an immutable user turn.
func (l *Log) AppendUser(text string) {
	l.Seal()
	l.turns = append(l.turns, Turn{Role: RoleUser, Text: text})
}

// AppendText appends chunk to the open model turn, or starts a new model turn
// when none is open. It reports whether a turn was created.
func (l *Log) AppendText(chunk string) bool {
	if l.textOpen {
		l.turns[len(l.turns)-1].Text += chunk
		return false
	}
	l.turns = append(l.turns, Turn{Role: RoleModel, Text: chunk})
	l.textOpen = true
	l.refsOpen = true
	return true
}

// MergeMetadata merges the non-nil references of md into the last model
// turn. Existing values are replaced, never cleared. It reports false, and
// leaves the log unchanged, when no model turn is accepting metadata.
func (l *Log) MergeMetadata(md frame.Metadata) bool {
	if !l.refsOpen {
		return false
	}
	last := &l.turns[len(l.turns)-1]
	if md.QuestionImageRef != nil {
		last.QuestionImageRef = cloneRef(md.QuestionImageRef)
	}
	if md.AnswerImageRef != nil {
		last.AnswerImageRef = cloneRef(md.AnswerImageRef)
	}
	if md.VideoRef != nil {
		last.VideoRef = cloneRef(md.VideoRef)
	}
	return true
}

// FinishText ends the text of the current model turn. Its references stay
// open for metadata that trails the end of the response.
func (l *Log) FinishText() {
	l.textOpen = false
}

// Seal makes every turn immutable.
func (l *Log) Seal() {
	l.textOpen = false
	l.refsOpen = false
}

// acceptingText reports whether a model turn is receiving text.
func (l *Log) acceptingText() bool { return l.textOpen }

// acceptingMetadata reports whether the last model turn accepts references.
func (l *Log) acceptingMetadata() bool { return l.refsOpen }

// Len returns the number of turns.
func (l *Log) Len() int { return len(l.turns) }

// Last returns the last turn, if any.
func (l *Log) Last() (Turn, bool) {
	if len(l.turns) == 0 {
		return Turn{}, false
	}
	return l.turns[len(l.turns)-1].clone(), true
}

// Turns returns a deep copy of the log.
func (l *Log) Turns() []Turn {
	return cloneTurns(l.turns)
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}

// clone copies t without sharing its reference strings.
func (t Turn) clone() Turn {
	t.QuestionImageRef = cloneRef(t.QuestionImageRef)
	t.AnswerImageRef = cloneRef(t.AnswerImageRef)
	t.VideoRef = cloneRef(t.VideoRef)
	return t
}

func cloneRef(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
