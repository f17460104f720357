// Package render builds the annotated text block that the enrichment
// transform reads for each item.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// LinkPlaceholder replaces every outgoing https link in rendered text.
const LinkPlaceholder = "<outgoing_link>"

// DefaultMaxComments is the number of top-level comments included when the
// renderer is built with a non-positive limit.
const DefaultMaxComments = 5

var linkPattern = regexp.MustCompile(`https://\S+`)

// RedactLinks replaces every https:// URL in text with LinkPlaceholder.
func RedactLinks(text string) string {
	return linkPattern.ReplaceAllString(text, LinkPlaceholder)
}

// Renderer turns a title, body and top comments into a single text block.
// It is safe for concurrent use.
type Renderer struct {
	policy      *bluemonday.Policy
	maxComments int
}

// New returns a Renderer that includes at most maxComments top-level
// comments, or DefaultMaxComments when maxComments is not positive.
func New(maxComments int) *Renderer {
	if maxComments <= 0 {
		maxComments = DefaultMaxComments
	}
	return &Renderer{
		policy:      bluemonday.StrictPolicy(),
		maxComments: maxComments,
	}
}

// Render lays out the item as
//
//	Title: <title>
//
//	Content:
//	<body>
//
//	Top <k> comments:
//	Comment 1: <c1>
//
// When commentsErr is non-nil the comment section is left out entirely.
func (r *Renderer) Render(title, body string, comments []string, commentsErr error) string {
	content := r.clean(body)
	if commentsErr != nil {
		return fmt.Sprintf("Title: %s\n\nContent:\n%s", title, content)
	}

	if len(comments) > r.maxComments {
		comments = comments[:r.maxComments]
	}
	lines := make([]string, len(comments))
	for i, c := range comments {
		lines[i] = fmt.Sprintf("Comment %d: %s", i+1, r.clean(c))
	}

	return fmt.Sprintf("Title: %s\n\nContent:\n%s\n\nTop %d comments:\n", title, content, len(lines)) +
		strings.Join(lines, "\n")
}

// clean strips markup and redacts links. The strict policy escapes entities,
// so the result is unescaped back to plain text.
func (r *Renderer) clean(s string) string {
	return RedactLinks(html.UnescapeString(r.policy.Sanitize(s)))
}
