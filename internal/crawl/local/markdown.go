package local

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const stripSelector = "script, style, noscript, nav, header, footer, aside, form, svg, iframe, template"

var multiSpace = regexp.MustCompile(`[ \t]{2,}`)

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Blockquote: true, atom.Dd: true, atom.Details: true,
	atom.Dl: true, atom.Div: true, atom.Dt: true, atom.Figure: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true,
	atom.Summary: true, atom.Table: true, atom.Ul: true,
}

// HTMLToMarkdown extracts the page title and the main content as markdown.
// Relative links are resolved against base when it is non-nil.
func HTMLToMarkdown(doc *goquery.Document, base *url.URL) (string, string) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	root := doc.Find("main, article, [role=main]").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	root.Find(stripSelector).Remove()

	r := &mdRenderer{base: base}
	for _, n := range root.Nodes {
		r.container(n)
	}
	return title, strings.TrimSpace(strings.Join(r.blocks, "\n\n"))
}

type mdRenderer struct {
	base   *url.URL
	blocks []string
}

func (r *mdRenderer) emit(text string) {
	text = strings.TrimSpace(multiSpace.ReplaceAllString(text, " "))
	if text != "" {
		r.blocks = append(r.blocks, text)
	}
}

// container renders children, grouping consecutive inline nodes into one paragraph.
func (r *mdRenderer) container(n *html.Node) {
	var run strings.Builder
	flush := func() {
		r.emit(run.String())
		run.Reset()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && blockAtoms[c.DataAtom] {
			flush()
			r.block(c)
			continue
		}
		run.WriteString(r.inline(c))
	}
	flush()
}

func (r *mdRenderer) block(n *html.Node) {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level, _ := strconv.Atoi(n.Data[1:])
		if text := strings.TrimSpace(r.inline(n)); text != "" {
			r.emit(strings.Repeat("#", level) + " " + text)
		}
	case atom.P, atom.Dt, atom.Dd, atom.Summary:
		r.emit(r.inline(n))
	case atom.Pre:
		code := strings.TrimRight(textContent(n), "\n")
		if strings.TrimSpace(code) != "" {
			r.blocks = append(r.blocks, "```\n"+code+"\n```")
		}
	case atom.Ul, atom.Ol:
		if lines := r.list(n, 0); len(lines) > 0 {
			r.blocks = append(r.blocks, strings.Join(lines, "\n"))
		}
	case atom.Blockquote:
		if text := strings.TrimSpace(r.inline(n)); text != "" {
			r.emit("> " + text)
		}
	case atom.Hr:
		r.blocks = append(r.blocks, "---")
	case atom.Table:
		if rows := r.table(n); len(rows) > 0 {
			r.blocks = append(r.blocks, strings.Join(rows, "\n"))
		}
	default:
		r.container(n)
	}
}

func (r *mdRenderer) list(n *html.Node, depth int) []string {
	var lines []string
	ordered := n.DataAtom == atom.Ol
	index := 1
	indent := strings.Repeat("  ", depth)
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		var (
			text   strings.Builder
			nested []string
		)
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
				nested = append(nested, r.list(c, depth+1)...)
				continue
			}
			text.WriteString(r.inline(c))
		}
		marker := "- "
		if ordered {
			marker = strconv.Itoa(index) + ". "
			index++
		}
		item := strings.TrimSpace(multiSpace.ReplaceAllString(text.String(), " "))
		if item != "" {
			lines = append(lines, indent+marker+item)
		}
		lines = append(lines, nested...)
	}
	return lines
}

func (r *mdRenderer) table(n *html.Node) []string {
	var rows []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom != atom.Tr {
				walk(c)
				continue
			}
			var cells []string
			header := false
			for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
				if cell.Type != html.ElementNode || (cell.DataAtom != atom.Td && cell.DataAtom != atom.Th) {
					continue
				}
				header = header || cell.DataAtom == atom.Th
				cells = append(cells, strings.TrimSpace(r.inline(cell)))
			}
			if len(cells) == 0 {
				continue
			}
			rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
			if header && len(rows) == 1 {
				rows = append(rows, "|"+strings.Repeat(" --- |", len(cells)))
			}
		}
	}
	walk(n)
	return rows
}

func (r *mdRenderer) inline(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return collapseSpace(n.Data)
	case html.ElementNode:
	default:
		return ""
	}

	children := func() string {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			sb.WriteString(r.inline(c))
		}
		return sb.String()
	}

	switch n.DataAtom {
	case atom.Br:
		return "\n"
	case atom.Img:
		return ""
	case atom.Code:
		if text := textContent(n); strings.TrimSpace(text) != "" {
			return "`" + text + "`"
		}
		return ""
	case atom.Strong, atom.B:
		return wrap(children(), "**")
	case atom.Em, atom.I:
		return wrap(children(), "_")
	case atom.A:
		text := strings.TrimSpace(children())
		href := r.resolve(attr(n, "href"))
		if text == "" || href == "" {
			return text
		}
		return "[" + text + "](" + href + ")"
	default:
		return children()
	}
}

func (r *mdRenderer) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	if r.base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return r.base.ResolveReference(ref).String()
}

func wrap(text, marker string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text
	}
	return marker + trimmed + marker
}

// collapseSpace folds whitespace runs to one space, keeping a single space at
// either edge so adjacent inline nodes stay separated.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if unicode.IsSpace(rune(s[0])) {
		out = " " + out
	}
	if unicode.IsSpace(rune(s[len(s)-1])) {
		out += " "
	}
	return out
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
