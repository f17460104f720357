package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ricirt/community-digest/internal/domain"
)

// The fence may sit anywhere in the answer, with prose before or after it.
var codeBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.+?)\\s*```")

func stripMarkdownCodeBlock(s string) string {
	if m := codeBlockRegex.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// ParseEnrichment extracts the enrichment object from a model answer. The
// object may be wrapped in a ```json fence, with or without surrounding prose. Plain prose, invalid JSON and an
// object carrying neither tags nor a summary all yield ErrUnusableEnrichment.
func ParseEnrichment(answer string) (domain.Enrichment, error) {
	text := stripMarkdownCodeBlock(answer)
	if !strings.HasPrefix(text, "{") {
		return domain.Enrichment{}, fmt.Errorf("%w: answer is not a JSON object", domain.ErrUnusableEnrichment)
	}

	var enr domain.Enrichment
	if err := json.Unmarshal([]byte(text), &enr); err != nil {
		return domain.Enrichment{}, fmt.Errorf("%w: %v", domain.ErrUnusableEnrichment, err)
	}

	enr = enr.Normalize()
	if len(enr.Tags) == 0 && enr.Summary == "" {
		return domain.Enrichment{}, fmt.Errorf("%w: empty tags and summary", domain.ErrUnusableEnrichment)
	}
	return enr, nil
}
