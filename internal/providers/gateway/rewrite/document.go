package rewrite

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Doctype is written at the top of every rendered document
const Doctype = "<!DOCTYPE html>"

// Document is a parsed page being prepared for a frame
type Document struct {
	doc *goquery.Document
}

// Parse parses markup. The HTML5 parser recovers from malformed input, so
// an error means the reader itself failed.
func Parse(markup string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Selection exposes the underlying goquery document
func (d *Document) Selection() *goquery.Selection {
	return d.doc.Selection
}

// Title returns the text of the first <title>
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// SetTitle replaces the text of <title>, creating the element when the
// head has none.
func (d *Document) SetTitle(title string) {
	sel := d.doc.Find("title")
	if sel.Length() > 0 {
		sel.First().SetText(title)
		sel.Slice(1, sel.Length()).Remove()
		return
	}

	head := d.head()
	if head == nil {
		return
	}
	node := &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
	node.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	head.AppendChild(node)
}

// InjectScript inserts an inline script as the first child of <head>, so it
// runs before any of the page's own scripts.
func (d *Document) InjectScript(script string) {
	node := scriptNode(script)
	head := d.head()
	if head == nil {
		// no head at all; put it in front of the whole tree
		root := d.doc.Selection.Nodes[0]
		root.InsertBefore(node, root.FirstChild)
		return
	}
	head.InsertBefore(node, head.FirstChild)
}

func (d *Document) head() *html.Node {
	sel := d.doc.Find("head")
	if sel.Length() == 0 {
		return nil
	}
	return sel.Nodes[0]
}

func scriptNode(script string) *html.Node {
	node := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	node.AppendChild(&html.Node{Type: html.TextNode, Data: script})
	return node
}

// Render serializes the document behind a single doctype declaration
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(Doctype)

	root := d.doc.Selection.Nodes[0]
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.DoctypeNode {
			continue
		}
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return buf.String(), nil
}

// InjectScriptString inserts a script into markup that could not be
// handled as a tree. It tries, in order, before </head>, after <head>,
// after <body>, after <html>, and finally prepends.
func InjectScriptString(markup, script string) string {
	tag := "<script>" + script + "</script>"
	lower := strings.ToLower(markup)

	if i := strings.Index(lower, "</head>"); i >= 0 {
		return markup[:i] + tag + markup[i:]
	}
	for _, open := range []string{"<head", "<body", "<html"} {
		if i := indexOpenTag(lower, open); i >= 0 {
			return markup[:i] + tag + markup[i:]
		}
	}
	return tag + markup
}

// indexOpenTag returns the offset just past the opening tag name, or -1.
// "<header" does not count as "<head".
func indexOpenTag(lower, name string) int {
	from := 0
	for {
		i := strings.Index(lower[from:], name)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(name)
		if end < len(lower) && (lower[end] == '>' || isSpace(lower[end]) || lower[end] == '/') {
			gt := strings.IndexByte(lower[end:], '>')
			if gt < 0 {
				return -1
			}
			return end + gt + 1
		}
		from = end
	}
}
