package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ricirt/community-digest/internal/domain"
)

func validEnvelope() domain.Envelope {
	return domain.NewEnvelope(domain.Envelope{
		ItemID:       "t3_abc123",
		Community:    "golang",
		Title:        "Go 1.24 released",
		Body:         "Release notes inside",
		Author:       "gopher",
		CreatedAt:    time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		URL:          "https://example.com/r/golang/abc123",
		Score:        420,
		CommentCount: 69,
		RenderedText: "Title: Go 1.24 released",
	})
}

func TestEnvelope_EncodeDecodeRoundTrip(t *testing.T) {
	env := validEnvelope()

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := domain.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ItemID != env.ItemID || !got.CreatedAt.Equal(env.CreatedAt) || got.Score != env.Score {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, env)
	}
	if got.SchemaVersion != domain.EnvelopeSchemaVersion {
		t.Fatalf("expected schema version %d, got %d", domain.EnvelopeSchemaVersion, got.SchemaVersion)
	}
}

func TestDecodeEnvelope_FailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "this is not json"},
		{"empty object", "{}"},
		{"missing item_id", `{"schema_version":1,"community":"go","title":"t","created_at":"2026-10-18T12:00:00Z","rendered_text":"x"}`},
		{"missing rendered_text", `{"schema_version":1,"item_id":"1","community":"go","title":"t","created_at":"2026-10-18T12:00:00Z"}`},
		{"missing created_at", `{"schema_version":1,"item_id":"1","community":"go","title":"t","rendered_text":"x"}`},
		{"unknown version", `{"schema_version":2,"item_id":"1","community":"go","title":"t","created_at":"2026-10-18T12:00:00Z","rendered_text":"x"}`},
		{"negative comment count", `{"schema_version":1,"item_id":"1","community":"go","title":"t","created_at":"2026-10-18T12:00:00Z","rendered_text":"x","comment_count":-1}`},
		{"bad url", `{"schema_version":1,"item_id":"1","community":"go","title":"t","created_at":"2026-10-18T12:00:00Z","rendered_text":"x","url":"not a url"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.DecodeEnvelope([]byte(tc.payload))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !domain.IsMalformed(err) {
				t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestDecodeEnvelope_UnsupportedVersionIsDistinguishable(t *testing.T) {
	payload := `{"schema_version":7,"item_id":"1","community":"go","title":"t","created_at":"2026-10-18T12:00:00Z","rendered_text":"x"}`
	_, err := domain.DecodeEnvelope([]byte(payload))
	if !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeEnvelope_OptionalFieldsMayBeMissing(t *testing.T) {
	payload := `{"schema_version":1,"item_id":"1","community":"go","title":"t","created_at":"2026-10-18T12:00:00Z","rendered_text":"x","score":-3}`
	env, err := domain.DecodeEnvelope([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Author != "" || env.URL != "" || env.Score != -3 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestEnvelope_MessageIDIsStable(t *testing.T) {
	env := validEnvelope()
	if env.MessageID() != validEnvelope().MessageID() {
		t.Fatal("expected identical envelopes to share a message id")
	}
	if !strings.HasPrefix(env.MessageID(), env.ItemID+":") {
		t.Fatalf("expected message id to start with item id, got %q", env.MessageID())
	}
}

func TestEnrichment_Normalize(t *testing.T) {
	enr := domain.Enrichment{
		Tags:    []string{" go ", "", "release", "a", "b", "c", "d", "e", "f"},
		Summary: "  short summary ",
	}.Normalize()

	if len(enr.Tags) != domain.MaxTags {
		t.Fatalf("expected %d tags, got %d (%v)", domain.MaxTags, len(enr.Tags), enr.Tags)
	}
	if enr.Tags[0] != "go" {
		t.Fatalf("expected trimmed first tag, got %q", enr.Tags[0])
	}
	if enr.Summary != "short summary" {
		t.Fatalf("expected trimmed summary, got %q", enr.Summary)
	}
}

func TestDayBounds(t *testing.T) {
	ts := time.Date(2026, 10, 18, 23, 59, 0, 0, time.FixedZone("X", 2*3600))
	start, end := domain.DayBounds(ts)
	if !start.Equal(time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Fatalf("expected one day span, got %v", end.Sub(start))
	}
}
