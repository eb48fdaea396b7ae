package lore

import (
	"bytes"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/safetale/safetale-sync/internal/logger"
)

var (
	htmlTagPattern   = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)
	multipleNewlines = regexp.MustCompile(`\n{3,}`)
)

// Threshold for considering text as HTML (number of HTML tags)
const htmlTagThreshold = 3

// ConvertIfHTML detects HTML lore sources (for example saved e-book pages)
// and converts them to markdown text. Returns the text and whether a
// conversion happened.
func ConvertIfHTML(input string) (string, bool) {
	if !isHTML(input) {
		return input, false
	}

	cleaned, err := preprocessHTML(input)
	if err != nil {
		logger.Warn("Failed to preprocess HTML lore: %v, using original", err)
		cleaned = input
	}

	markdown, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		logger.Warn("Failed to convert HTML lore to markdown: %v", err)
		return input, false
	}

	markdown = strings.TrimSpace(multipleNewlines.ReplaceAllString(markdown, "\n\n"))
	logger.Debug("Converted HTML lore to markdown (%d -> %d bytes)", len(input), len(markdown))
	return markdown, true
}

func isHTML(input string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
		return true
	}
	return len(htmlTagPattern.FindAllStringIndex(input, htmlTagThreshold)) >= htmlTagThreshold
}

// preprocessHTML keeps the body (or main/article when present) and drops
// scripts, styles and page chrome.
func preprocessHTML(input string) (string, error) {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return input, err
	}

	root := findContentRoot(doc)
	removeUnwantedNodes(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return input, err
	}
	return buf.String(), nil
}

func findContentRoot(doc *html.Node) *html.Node {
	var body, article, main *html.Node
	var search func(n *html.Node)
	search = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "main":
				if main == nil {
					main = n
				}
			case "article":
				if article == nil {
					article = n
				}
			case "body":
				if body == nil {
					body = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			search(c)
		}
	}
	search(doc)

	switch {
	case main != nil:
		return main
	case article != nil:
		return article
	case body != nil:
		return body
	}
	return doc
}

var unwantedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"meta":     true,
	"link":     true,
	"head":     true,
	"header":   true,
	"footer":   true,
	"nav":      true,
	"aside":    true,
	"iframe":   true,
	"svg":      true,
}

func removeUnwantedNodes(n *html.Node) {
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		removeUnwantedNodes(child)
		child = next
	}

	if n.Type == html.ElementNode && unwantedTags[n.Data] && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
