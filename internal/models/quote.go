package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyText   = errors.New("quote text is empty")
	ErrEmptyAuthor = errors.New("quote author is empty")
)

// Quote is the fixed-shape record produced at the extraction boundary.
type Quote struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Tags      []string  `json:"tags"`
	SourceURL string    `json:"source_url,omitempty"`
	ScrapedAt time.Time `json:"scraped_at,omitempty"`
}

// Validate checks the invariants every stored quote must satisfy.
func (q *Quote) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyText
	}
	if strings.TrimSpace(q.Author) == "" {
		return ErrEmptyAuthor
	}
	return nil
}

// Normalize trims surrounding whitespace and the curly quotation marks
// the source site wraps quote text in.
func (q *Quote) Normalize() {
	q.Text = strings.Trim(strings.TrimSpace(q.Text), "“”\"")
	q.Author = strings.TrimSpace(q.Author)
	for i, tag := range q.Tags {
		q.Tags[i] = strings.TrimSpace(tag)
	}
}
