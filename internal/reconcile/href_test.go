package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidatePath(t *testing.T) {
	tests := []struct {
		href    string
		want    string
		content bool
	}{
		{"file:content/A/doc1.pdf", "A/doc1.pdf", true},
		{"  file:content/A/doc1.pdf  ", "A/doc1.pdf", true},
		{"FILE:content/A/doc1.pdf", "A/doc1.pdf", true},
		{"file:file:content/x.txt", "x.txt", true},
		{"file:///content/A/x.txt", "A/x.txt", true},
		{`file:content\A\B\x.txt`, "A/B/x.txt", true},
		{"file:content/./A/../B/x.txt", "B/x.txt", true},
		{"content/A/x.txt", "A/x.txt", true},
		{"file:A/x.txt", "A/x.txt", false},
		{"file:./x.txt", "x.txt", false},
		{"file:content", "", true},
		{"file:", "", false},
		{"", "", false},
		{"file:contentious/x.txt", "contentious/x.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, content := CandidatePath(tt.href)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.content, content)
		})
	}
}

func TestCanonicalHref(t *testing.T) {
	assert.Equal(t, "file:content/A/doc1.pdf", CanonicalHref("A/doc1.pdf"))
}
