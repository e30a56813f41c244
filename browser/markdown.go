package browser

import (
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

// HTMLToMarkdown converts page HTML to markdown for the LLM to read.
// A full converter runs first; when it fails or produces nothing,
// readability extracts the article text instead. Output is NFC-normalized
// so hashes and truncation counts are stable across revisits.
func HTMLToMarkdown(html, pageURL string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	md, err := htmltomarkdown.ConvertString(html)
	if err == nil && strings.TrimSpace(md) != "" {
		return normalizeText(md), nil
	}

	parsed, _ := url.Parse(pageURL)
	article, rerr := readability.FromReader(strings.NewReader(html), parsed)
	if rerr == nil && article.TextContent != "" {
		return normalizeText(article.TextContent), nil
	}

	if err == nil {
		err = rerr
	}
	return "", fmt.Errorf("convert page content: %w", err)
}

func normalizeText(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(collapseBlankLines(s))
}

// collapseBlankLines reduces runs of three or more newlines to two.
func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// TruncateMarkdownBlocks caps markdown at maxBytes without cutting inside a
// block: the result ends at the last top-level block that fits entirely.
// When even the first block exceeds the budget, the text is cut mid-block
// as a last resort.
func TruncateMarkdownBlocks(md string, maxBytes int) string {
	if maxBytes <= 0 || len(md) <= maxBytes {
		return md
	}

	source := []byte(md)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	cut := 0
	for child := root.FirstChild(); child != nil; child = child.NextSibling() {
		end := blockEnd(child, len(source))
		if end > maxBytes {
			break
		}
		cut = end
	}
	if cut == 0 {
		cut = maxBytes
		for cut > 0 && !isRuneStart(source[cut]) {
			cut--
		}
	}
	return strings.TrimRight(string(source[:cut]), "\n") + "\n"
}

// blockEnd returns the byte offset just past the last source line the block
// covers. Container blocks without their own lines delegate to their last
// child.
func blockEnd(n ast.Node, sourceLen int) int {
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		stop := lines.At(lines.Len() - 1).Stop
		if stop > sourceLen {
			stop = sourceLen
		}
		return stop
	}
	if last := n.LastChild(); last != nil {
		return blockEnd(last, sourceLen)
	}
	return 0
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
