// Package frame classifies inbound stream messages.
//
// The stream service sends three kinds of text message on one channel: the
// end-of-stream sentinel, a tagged JSON metadata object, and raw text
// fragments of the model's answer. Classify maps every string to exactly one
// of them. It never fails: anything that is not the sentinel and not a
// well-formed metadata object is text, preserved byte for byte.
package frame

import (
	"encoding/json"
	"strings"
)

// EndOfStreamSentinel terminates one response stream.
const EndOfStreamSentinel = "[END_OF_STREAM]"

// metadataType is the discriminant value of a metadata frame.
const metadataType = "metadata"

// Kind is the classification of a frame.
type Kind int

const (
	// KindText is a fragment of model output.
	KindText Kind = iota
	// KindMetadata carries media references for the current model turn.
	KindMetadata
	// KindEndOfStream ends the outstanding response.
	KindEndOfStream
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindEndOfStream:
		return "end_of_stream"
	default:
		return "text"
	}
}

// Metadata is the payload of a metadata frame. Each field is nil when the
// service did not supply it or supplied an empty value.
type Metadata struct {
	QuestionImageRef *string
	AnswerImageRef   *string
	VideoRef         *string
}

// Empty reports whether m carries no reference at all.
func (m Metadata) Empty() bool {
	return m.QuestionImageRef == nil && m.AnswerImageRef == nil && m.VideoRef == nil
}

// Frame is one classified inbound message. Text is set for KindText and
// Metadata for KindMetadata.
type Frame struct {
	Kind     Kind
	Text     string
	Metadata Metadata
}

// Wire keys of a metadata frame. They match exactly; encoding/json struct
// decoding would also accept "Type" or "DATA".
const (
	keyType             = "type"
	keyData             = "data"
	keyQuestionImageURL = "question_image_url"
	keyAnswerImageURL   = "answer_image_url"
	keyYoutubeLink      = "youtube_link"
)

// Classify maps raw to a frame. The sentinel check comes first, then the
// structured parse, then the text fallback.
func Classify(raw string) Frame {
	if raw == EndOfStreamSentinel {
		return Frame{Kind: KindEndOfStream}
	}
	if md, ok := parseMetadata(raw); ok {
		return Frame{Kind: KindMetadata, Metadata: md}
	}
	return Frame{Kind: KindText, Text: raw}
}

func parseMetadata(raw string) (Metadata, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Metadata{}, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return Metadata{}, false
	}
	var tag string
	if err := json.Unmarshal(obj[keyType], &tag); err != nil || tag != metadataType {
		return Metadata{}, false
	}

	var md Metadata
	data, ok := obj[keyData]
	if !ok || string(data) == "null" {
		return md, true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Metadata{}, false
	}
	var err error
	if md.QuestionImageRef, err = refField(fields, keyQuestionImageURL); err != nil {
		return Metadata{}, false
	}
	if md.AnswerImageRef, err = refField(fields, keyAnswerImageURL); err != nil {
		return Metadata{}, false
	}
	if md.VideoRef, err = refField(fields, keyYoutubeLink); err != nil {
		return Metadata{}, false
	}
	return md, true
}

// refField decodes an optional string field. Missing, null and empty values
// are nil.
func refField(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return nonEmpty(v), nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
