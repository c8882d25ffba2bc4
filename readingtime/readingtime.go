// Package readingtime estimates how long a post takes to read.
package readingtime

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/eringen/spacetraveling/content"
)

// WordsPerMinute is the assumed reading speed.
const WordsPerMinute = 200

// PlainTexter turns a markup fragment into the human-readable text it shows.
type PlainTexter interface {
	PlainText(fragment string) string
}

// HTMLText strips every tag from a fragment and decodes entities.
type HTMLText struct {
	policy *bluemonday.Policy
}

// NewHTMLText returns a PlainTexter backed by bluemonday's strict policy.
func NewHTMLText() *HTMLText {
	return &HTMLText{policy: bluemonday.StrictPolicy()}
}

// PlainText implements PlainTexter. Block-level tags are replaced with a
// space so words on either side of them are not glued together.
func (h *HTMLText) PlainText(fragment string) string {
	if fragment == "" {
		return ""
	}
	fragment = blockBreaks.Replace(fragment)
	return html.UnescapeString(h.policy.Sanitize(fragment))
}

var blockBreaks = strings.NewReplacer(
	"<br>", " <br>",
	"<br/>", " <br/>",
	"<br />", " <br />",
	"</p>", "</p> ",
	"</li>", "</li> ",
	"</h1>", "</h1> ",
	"</h2>", "</h2> ",
	"</h3>", "</h3> ",
	"</h4>", "</h4> ",
	"</h5>", "</h5> ",
	"</h6>", "</h6> ",
	"</pre>", "</pre> ",
	"</blockquote>", "</blockquote> ",
	"</div>", "</div> ",
)

// Estimator computes reading time in whole minutes.
type Estimator struct {
	text PlainTexter
}

// New returns an Estimator that extracts text with pt. A nil pt uses
// NewHTMLText.
func New(pt PlainTexter) *Estimator {
	if pt == nil {
		pt = NewHTMLText()
	}
	return &Estimator{text: pt}
}

// Estimate sums ceil(words/WordsPerMinute) over each block. Rounding is per
// block, so splitting text across blocks can only raise the total.
// A post without words yields 0.
func (e *Estimator) Estimate(blocks []content.RichTextBlock) int {
	total := 0
	for _, b := range blocks {
		total += minutes(e.blockWords(b))
	}
	return total
}

func (e *Estimator) blockWords(b content.RichTextBlock) int {
	n := 0
	for _, f := range b.Body {
		n += CountWords(e.text.PlainText(f.Text))
	}
	return n
}

func minutes(words int) int {
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// CountWords counts whitespace-separated tokens in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
