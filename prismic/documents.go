package prismic

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/eringen/spacetraveling/content"
)

// Prismic writes timestamps like 2021-03-25T19:25:28+0000.
const timeLayout = "2006-01-02T15:04:05-0700"

type apiResponse struct {
	Refs []struct {
		ID          string `json:"id"`
		Ref         string `json:"ref"`
		IsMasterRef bool   `json:"isMasterRef"`
	} `json:"refs"`
}

func (a apiResponse) master() string {
	for _, r := range a.Refs {
		if r.IsMasterRef {
			return r.Ref
		}
	}
	return ""
}

type searchResponse struct {
	NextPage *string    `json:"next_page"`
	Results  []document `json:"results"`
}

type document struct {
	ID                   string                     `json:"id"`
	UID                  *string                    `json:"uid"`
	Type                 string                     `json:"type"`
	FirstPublicationDate *string                    `json:"first_publication_date"`
	Data                 map[string]json.RawMessage `json:"data"`
}

type contentSlice struct {
	Heading json.RawMessage   `json:"heading"`
	Body    []json.RawMessage `json:"body"`
}

func (r searchResponse) page() content.PostPage {
	page := content.PostPage{Items: make([]content.PostSummary, 0, len(r.Results))}
	if r.NextPage != nil {
		page.NextPage = *r.NextPage
	}
	for _, d := range r.Results {
		page.Items = append(page.Items, d.summary())
	}
	return page
}

// key is the uid, falling back to the document id.
func (d document) key() string {
	if d.UID != nil && *d.UID != "" {
		return *d.UID
	}
	return d.ID
}

func (d document) summary() content.PostSummary {
	return content.PostSummary{
		ID:          d.key(),
		PublishedAt: parseTime(d.FirstPublicationDate),
		Title:       text(d.Data["title"]),
		Subtitle:    text(d.Data["subtitle"]),
		Author:      text(d.Data["author"]),
	}
}

func (d document) detail() content.PostDetail {
	post := content.PostDetail{
		ID:          d.key(),
		PublishedAt: parseTime(d.FirstPublicationDate),
		Title:       text(d.Data["title"]),
		Author:      text(d.Data["author"]),
		BannerURL:   imageURL(d.Data["banner"]),
	}
	var slices []contentSlice
	if raw, ok := d.Data["content"]; ok && json.Unmarshal(raw, &slices) == nil {
		for _, s := range slices {
			block := content.RichTextBlock{Heading: text(s.Heading)}
			for _, b := range s.Body {
				block.Body = append(block.Body, content.BodyFragment{Text: fragment(b)})
			}
			post.Content = append(post.Content, block)
		}
	}
	return post
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range []string{timeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

// text coerces a data field to a string. Plain strings pass through, rich
// text arrays are flattened to their text joined by spaces, and anything
// else (missing, null, numbers, objects) becomes "".
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case '[':
		var spans []struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(raw, &spans) == nil {
			parts := make([]string, 0, len(spans))
			for _, s := range spans {
				if s.Text != "" {
					parts = append(parts, s.Text)
				}
			}
			return strings.Join(parts, " ")
		}
	}
	return ""
}

// fragment reads the text of one body entry, which is either an object
// with a text field or a bare string.
func fragment(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var f struct {
			Text json.RawMessage `json:"text"`
		}
		if json.Unmarshal(raw, &f) == nil {
			return text(f.Text)
		}
		return ""
	}
	return text(raw)
}

func imageURL(raw json.RawMessage) string {
	var img struct {
		URL string `json:"url"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &img) != nil {
		return ""
	}
	return img.URL
}
