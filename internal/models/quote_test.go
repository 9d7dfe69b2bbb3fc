package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteValidate(t *testing.T) {
	tests := []struct {
		name    string
		quote   Quote
		wantErr error
	}{
		{
			name:  "valid quote",
			quote: Quote{Text: "A witty saying.", Author: "Oscar Wilde"},
		},
		{
			name:    "empty text",
			quote:   Quote{Author: "Oscar Wilde"},
			wantErr: ErrEmptyText,
		},
		{
			name:    "whitespace only text",
			quote:   Quote{Text: "   ", Author: "Oscar Wilde"},
			wantErr: ErrEmptyText,
		},
		{
			name:    "empty author",
			quote:   Quote{Text: "A witty saying."},
			wantErr: ErrEmptyAuthor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.quote.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestQuoteNormalize(t *testing.T) {
	q := Quote{
		Text:   "  “The truth is rarely pure and never simple.”  ",
		Author: " Oscar Wilde ",
		Tags:   []string{" truth ", "wisdom"},
	}
	q.Normalize()

	assert.Equal(t, "The truth is rarely pure and never simple.", q.Text)
	assert.Equal(t, "Oscar Wilde", q.Author)
	assert.Equal(t, []string{"truth", "wisdom"}, q.Tags)
}
