package browser

import (
	"strings"
	"testing"
)

func TestIsPDFContent(t *testing.T) {
	tests := []struct {
		name string
		html string
		want bool
	}{
		{"embed tag", `<embed type="application/pdf" src="doc.pdf">`, true},
		{"viewer class", `<div class="pdf-viewer">...</div>`, true},
		{"plain page", `<html><body><p>hello</p></body></html>`, false},
		{"mentions pdf in text", `<p>download the PDF here</p>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPDFContent(tt.html); got != tt.want {
				t.Errorf("isPDFContent(%q) = %v, want %v", tt.html, got, tt.want)
			}
		})
	}
}

func TestTruncateWords(t *testing.T) {
	in := "one two  three\nfour\tfive"
	got := truncateWords(in, 3)
	if got != "one two three" {
		t.Errorf("truncateWords = %q, want %q", got, "one two three")
	}

	// Under the cap the text is still rejoined on single spaces.
	got = truncateWords(in, 100)
	if got != "one two three four five" {
		t.Errorf("truncateWords = %q, want single-spaced join", got)
	}
}

func TestTruncateWordsLargeInput(t *testing.T) {
	in := strings.Repeat("w ", maxPDFWords+500)
	got := truncateWords(in, maxPDFWords)
	if n := len(strings.Fields(got)); n != maxPDFWords {
		t.Errorf("kept %d words, want %d", n, maxPDFWords)
	}
}

func TestExtractPDFTextEmpty(t *testing.T) {
	if _, err := extractPDFText(nil); err == nil {
		t.Error("want error for empty content")
	}
	if _, err := extractPDFText([]byte("not a pdf")); err == nil {
		t.Error("want error for non-PDF bytes")
	}
}
