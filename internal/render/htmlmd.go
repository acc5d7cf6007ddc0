package render

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	whitespaceRun = regexp.MustCompile(`[ \t\r\n\f]+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
)

// HTMLToMarkdown 将 HTML 片段转换为 Markdown。调用方应先执行 SanitizeHTML。
func HTMLToMarkdown(fragment string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", err
	}

	c := &mdConverter{}
	for _, n := range nodes {
		c.walk(n)
	}
	return cleanupMarkdown(c.buf.String()), nil
}

type listState struct {
	ordered bool
	index   int
}

type mdConverter struct {
	buf    strings.Builder
	lists  []listState
	inItem int
}

func (c *mdConverter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		c.text(n.Data)
		return
	case html.ElementNode:
	default:
		c.children(n)
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Iframe, atom.Template, atom.Head:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		c.block()
		c.buf.WriteString(strings.Repeat("#", level) + " ")
		c.children(n)
		c.block()
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Main, atom.Figure, atom.Aside, atom.Nav:
		if c.inItem > 0 {
			c.children(n)
			return
		}
		c.block()
		c.children(n)
		c.block()
	case atom.Br:
		c.buf.WriteString("\n")
	case atom.Hr:
		c.block()
		c.buf.WriteString("---")
		c.block()
	case atom.Strong, atom.B:
		c.wrap(n, "**")
	case atom.Em, atom.I:
		c.wrap(n, "_")
	case atom.Del, atom.S:
		c.wrap(n, "~~")
	case atom.Code:
		c.buf.WriteString("`" + textContent(n) + "`")
	case atom.Pre:
		c.pre(n)
	case atom.A:
		c.link(n)
	case atom.Img:
		alt := attr(n, "alt")
		if src := attr(n, "src"); src != "" {
			c.buf.WriteString("![" + alt + "](" + src + ")")
		}
	case atom.Ul, atom.Ol:
		c.list(n)
	case atom.Li:
		c.item(n)
	case atom.Blockquote:
		c.quote(n)
	case atom.Table:
		c.table(n)
	case atom.Figcaption:
		c.block()
		c.wrap(n, "_")
		c.block()
	default:
		c.children(n)
	}
}

func (c *mdConverter) children(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child)
	}
}

func (c *mdConverter) text(raw string) {
	collapsed := whitespaceRun.ReplaceAllString(raw, " ")
	if collapsed == " " || collapsed == "" {
		current := c.buf.String()
		if current == "" || strings.HasSuffix(current, "\n") || strings.HasSuffix(current, " ") {
			return
		}
	}
	if current := c.buf.String(); current == "" || strings.HasSuffix(current, "\n") || strings.HasSuffix(current, " ") {
		collapsed = strings.TrimLeft(collapsed, " ")
	}
	c.buf.WriteString(collapsed)
}

func (c *mdConverter) wrap(n *html.Node, marker string) {
	inner := strings.TrimSpace(renderInline(n))
	if inner == "" {
		return
	}
	c.buf.WriteString(marker + inner + marker)
}

func (c *mdConverter) link(n *html.Node) {
	href := attr(n, "href")
	label := strings.TrimSpace(renderInline(n))
	switch {
	case href == "":
		c.buf.WriteString(label)
	case label == "":
		c.buf.WriteString("<" + href + ">")
	default:
		c.buf.WriteString("[" + label + "](" + href + ")")
	}
}

func (c *mdConverter) pre(n *html.Node) {
	lang := ""
	if code := n.FirstChild; code != nil && code.DataAtom == atom.Code {
		for _, cls := range strings.Fields(attr(code, "class")) {
			if strings.HasPrefix(cls, "language-") {
				lang = strings.TrimPrefix(cls, "language-")
				break
			}
		}
	}
	c.block()
	c.buf.WriteString("```" + lang + "\n")
	c.buf.WriteString(strings.Trim(textContent(n), "\n"))
	c.buf.WriteString("\n```")
	c.block()
}

func (c *mdConverter) list(n *html.Node) {
	if len(c.lists) == 0 {
		c.block()
	} else {
		c.newline()
	}
	c.lists = append(c.lists, listState{ordered: n.DataAtom == atom.Ol})
	c.children(n)
	c.lists = c.lists[:len(c.lists)-1]
	if len(c.lists) == 0 {
		c.block()
	}
}

func (c *mdConverter) item(n *html.Node) {
	if len(c.lists) == 0 {
		c.lists = append(c.lists, listState{})
		defer func() { c.lists = c.lists[:0] }()
	}
	state := &c.lists[len(c.lists)-1]
	state.index++

	c.newline()
	c.buf.WriteString(strings.Repeat("  ", len(c.lists)-1))
	if state.ordered {
		c.buf.WriteString(strconv.Itoa(state.index) + ". ")
	} else {
		c.buf.WriteString("- ")
	}
	c.inItem++
	c.children(n)
	c.inItem--
}

func (c *mdConverter) quote(n *html.Node) {
	sub := &mdConverter{}
	sub.children(n)
	inner := cleanupMarkdown(sub.buf.String())
	if strings.TrimSpace(inner) == "" {
		return
	}
	lines := strings.Split(strings.TrimRight(inner, "\n"), "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	c.block()
	c.buf.WriteString(strings.Join(lines, "\n"))
	c.block()
}

func (c *mdConverter) table(n *html.Node) {
	var rows [][]string
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			if child.DataAtom == atom.Tr {
				var cells []string
				for cell := child.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.DataAtom == atom.Td || cell.DataAtom == atom.Th {
						text := strings.TrimSpace(whitespaceRun.ReplaceAllString(renderInline(cell), " "))
						cells = append(cells, strings.ReplaceAll(text, "|", `\|`))
					}
				}
				rows = append(rows, cells)
				continue
			}
			collect(child)
		}
	}
	collect(n)
	if len(rows) == 0 {
		return
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	c.block()
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		c.buf.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			c.buf.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
		}
	}
	c.block()
}

// block 保证后续内容另起段落。
func (c *mdConverter) block() {
	current := c.buf.String()
	if current == "" || strings.HasSuffix(current, "\n\n") {
		return
	}
	if strings.HasSuffix(current, "\n") {
		c.buf.WriteString("\n")
		return
	}
	c.buf.WriteString("\n\n")
}

func (c *mdConverter) newline() {
	current := c.buf.String()
	if current == "" || strings.HasSuffix(current, "\n") {
		return
	}
	c.buf.WriteString("\n")
}

func renderInline(n *html.Node) string {
	sub := &mdConverter{}
	sub.children(n)
	return sub.buf.String()
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(n)
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

// cleanupMarkdown 去除行尾空白、合并多余空行，并保证以单个换行结尾。
func cleanupMarkdown(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	out = blankLines.ReplaceAllString(out, "\n\n")
	out = strings.Trim(out, "\n")
	if out == "" {
		return ""
	}
	return out + "\n"
}
