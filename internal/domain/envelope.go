package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EnvelopeSchemaVersion is the only envelope layout the consumer accepts.
const EnvelopeSchemaVersion = 1

// Envelope is the unit of work placed on the queue: one fetched content item
// with its popularity signals frozen at fetch time and the text rendered for
// enrichment. Envelopes are values; nothing mutates one after NewEnvelope.
type Envelope struct {
	SchemaVersion int       `json:"schema_version" validate:"required,eq=1"`
	ItemID        string    `json:"item_id" validate:"required"`
	Community     string    `json:"community" validate:"required"`
	Title         string    `json:"title" validate:"required"`
	Body          string    `json:"body"`
	Author        string    `json:"author,omitempty"`
	CreatedAt     time.Time `json:"created_at" validate:"required"`
	URL           string    `json:"url,omitempty" validate:"omitempty,url"`
	Score         int       `json:"score"`
	CommentCount  int       `json:"comment_count" validate:"gte=0"`
	RenderedText  string    `json:"rendered_text" validate:"required"`
}

// NewEnvelope stamps the schema version and normalises the creation time to UTC.
func NewEnvelope(e Envelope) Envelope {
	e.SchemaVersion = EnvelopeSchemaVersion
	e.CreatedAt = e.CreatedAt.UTC()
	return e
}

// MessageID is the broker-side deduplication key for this envelope.
func (e Envelope) MessageID() string {
	return fmt.Sprintf("%s:%d", e.ItemID, e.CreatedAt.Unix())
}

// Encode serialises the envelope into its wire form.
func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.ItemID, err)
	}
	return b, nil
}

// DecodeEnvelope parses and validates a wire payload. It fails closed: any
// syntax error, missing required field or unknown schema version yields an
// error wrapping ErrMalformedEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if e.SchemaVersion != 0 && e.SchemaVersion != EnvelopeSchemaVersion {
		return Envelope{}, fmt.Errorf("%w: %w (%d)", ErrMalformedEnvelope, ErrUnsupportedVersion, e.SchemaVersion)
	}
	if err := Validate(&e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return e, nil
}

// IsMalformed reports whether err means the payload can never be processed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEnvelope)
}
