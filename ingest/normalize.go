// Package ingest turns source documents into vector-store chunks and
// knowledge-graph entities. It normalizes markdown and HTML into plain
// text, chunks the text for embedding, and writes co-occurring surgical
// entities into the graph.
package ingest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var innerSpaceRe = regexp.MustCompile(`[ \t]+`)

// MarkdownToText converts markdown to normalized plain text. The markdown
// is rendered to HTML, sanitized, and stripped of tags, so raw HTML
// embedded in the markdown cannot smuggle scripts into the corpus.
func MarkdownToText(source []byte) (string, error) {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(source)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	sanitized := bluemonday.UGCPolicy().SanitizeBytes(rendered)
	return HTMLToText(string(sanitized))
}

// HTMLToText extracts readable text from an HTML document. Block elements
// become paragraphs so downstream chunking can respect their boundaries.
func HTMLToText(source string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var paragraphs []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, pre, blockquote").Each(func(_ int, sel *goquery.Selection) {
		// Nested matches (a li inside a blockquote) would duplicate text.
		if sel.Parent().Closest("p, li, td, pre, blockquote").Length() > 0 {
			return
		}
		if text := normalizeInline(sel.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		// No block structure, fall back to the raw text content.
		return normalizeParagraphs(doc.Text()), nil
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

// normalizeInline collapses all whitespace inside one block of text.
func normalizeInline(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// normalizeParagraphs trims each line and collapses blank-line runs so the
// result uses single blank lines as paragraph breaks.
func normalizeParagraphs(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(innerSpaceRe.ReplaceAllString(line, " "))
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
