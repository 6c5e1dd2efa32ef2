package retrieval

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageData is the content of a rendered page that gets indexed.
type PageData struct {
	URL             string
	Title           string
	MetaDescription string
	MetaKeywords    string

	// Text is the visible text, one line per text node.
	Text string

	// HTML is the markup with scripts, styles and comments removed and only
	// attributes useful for locating elements kept.
	HTML string

	// Scripts is the inline script source joined by newlines.
	Scripts string

	// Styles lists stylesheet URLs, one per line.
	Styles string
}

// ParsePage extracts the indexed content from raw page HTML.
func ParsePage(pageURL, rawHTML string) (*PageData, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	p := &pageParser{data: &PageData{URL: pageURL}}
	p.walk(doc, 0)

	p.data.Text = strings.Join(p.text, "\n")
	p.data.HTML = strings.TrimSpace(p.markup.String())
	p.data.Scripts = strings.Join(p.scripts, "\n")
	p.data.Styles = strings.Join(p.styles, "\n")
	return p.data, nil
}

type pageParser struct {
	data    *PageData
	markup  strings.Builder
	text    []string
	scripts []string
	styles  []string
}

func (p *pageParser) walk(n *html.Node, depth int) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			p.text = append(p.text, t)
			p.markup.WriteString(html.EscapeString(t))
		}
		return
	case html.ElementNode:
		p.element(n, depth)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, depth)
	}
}

func (p *pageParser) element(n *html.Node, depth int) {
	tag := strings.ToLower(n.Data)

	switch tag {
	case "title":
		if p.data.Title == "" {
			p.data.Title = strings.TrimSpace(textOf(n))
		}
		return
	case "meta":
		switch strings.ToLower(attr(n, "name")) {
		case "description":
			p.data.MetaDescription = strings.TrimSpace(attr(n, "content"))
		case "keywords":
			p.data.MetaKeywords = strings.TrimSpace(attr(n, "content"))
		}
		return
	case "link":
		if strings.EqualFold(attr(n, "rel"), "stylesheet") {
			if href := attr(n, "href"); href != "" {
				p.styles = append(p.styles, href)
			}
		}
		return
	case "script":
		if src := strings.TrimSpace(textOf(n)); src != "" {
			p.scripts = append(p.scripts, src)
		}
		return
	case "head":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.walk(c, depth)
		}
		return
	case "style", "noscript", "iframe", "embed", "object", "svg":
		return
	}

	if depth > 0 && blockElements[tag] {
		p.markup.WriteString("\n")
		p.markup.WriteString(strings.Repeat("  ", depth))
	}
	p.markup.WriteString("<")
	p.markup.WriteString(tag)
	for _, a := range n.Attr {
		if keepAttribute(tag, strings.ToLower(a.Key)) {
			fmt.Fprintf(&p.markup, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
	}
	p.markup.WriteString(">")

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, depth+1)
	}

	if !voidElements[tag] {
		if blockElements[tag] {
			p.markup.WriteString("\n")
			p.markup.WriteString(strings.Repeat("  ", depth))
		}
		p.markup.WriteString("</")
		p.markup.WriteString(tag)
		p.markup.WriteString(">")
	}
}

var blockElements = map[string]bool{
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "ul": true,
	"ol": true, "li": true, "table": true, "tr": true, "td": true, "th": true,
	"form": true, "fieldset": true, "blockquote": true, "pre": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// keepAttribute reports whether an attribute helps a test locate the element.
func keepAttribute(tag, name string) bool {
	switch name {
	case "id", "class", "role", "aria-label", "aria-describedby", "title":
		return true
	}
	if strings.HasPrefix(name, "data-") {
		return true
	}
	switch tag {
	case "a":
		return name == "href"
	case "img":
		return name == "alt"
	case "input", "textarea", "select":
		return name == "name" || name == "type" || name == "placeholder"
	case "button":
		return name == "type" || name == "name"
	case "form":
		return name == "action" || name == "method"
	case "label":
		return name == "for"
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
