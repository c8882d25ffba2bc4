// Package content defines the post records the site reads from the CMS and
// the Source interface that supplies them.
package content

import (
	"context"
	"errors"
	"time"
)

// PostType is the CMS document type holding blog posts.
const PostType = "posts"

// ErrNotFound is returned when a requested post does not exist in the CMS.
var ErrNotFound = errors.New("content: post not found")

// PostSummary is a listing entry. ID is the document uid.
type PostSummary struct {
	ID          string
	PublishedAt *time.Time
	Title       string
	Subtitle    string
	Author      string
}

// PostPage is one page of a listing. An empty NextPage means there are no
// further pages.
type PostPage struct {
	NextPage string
	Items    []PostSummary
}

// HasMore reports whether another page can be fetched.
func (p PostPage) HasMore() bool {
	return p.NextPage != ""
}

// BodyFragment is one pre-rendered markup fragment of a block body.
type BodyFragment struct {
	Text string
}

// RichTextBlock is a headed section of a post.
type RichTextBlock struct {
	Heading string
	Body    []BodyFragment
}

// PostDetail is a full post as rendered on its own page.
type PostDetail struct {
	ID          string
	PublishedAt *time.Time
	Title       string
	Author      string
	BannerURL   string
	Content     []RichTextBlock
}

// Source is the headless CMS collaborator.
type Source interface {
	// QueryByType returns the first page of documents of docType, projected
	// to fields.
	QueryByType(ctx context.Context, docType string, fields []string) (PostPage, error)
	// GetByUID returns ErrNotFound when no document has the uid.
	GetByUID(ctx context.Context, docType, uid string) (PostDetail, error)
	// FetchPage follows a next-page locator.
	FetchPage(ctx context.Context, locator string) (PostPage, error)
}
