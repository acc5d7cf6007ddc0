package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToMarkdownBasics(t *testing.T) {
	input := `<h2>Title</h2>
<p>Hello <strong>world</strong> and <a href="https://x.test">link</a>.</p>
<ul><li>one</li><li>two</li></ul>
<script>alert(1)</script>`

	got, err := HTMLToMarkdown(input)
	require.NoError(t, err)
	assert.Equal(t, "## Title\n\nHello **world** and [link](https://x.test).\n\n- one\n- two\n", got)
}

func TestHTMLToMarkdownBlocks(t *testing.T) {
	got, err := HTMLToMarkdown(`<blockquote><p>Quoted</p></blockquote><pre><code class="language-go">fmt.Println(1)</code></pre><hr><ol><li>a</li><li>b</li></ol>`)
	require.NoError(t, err)
	assert.Equal(t, "> Quoted\n\n```go\nfmt.Println(1)\n```\n\n---\n\n1. a\n2. b\n", got)
}

func TestHTMLToMarkdownTable(t *testing.T) {
	got, err := HTMLToMarkdown(`<table><tr><th>k</th><th>v</th></tr><tr><td>a</td><td>1</td></tr></table>`)
	require.NoError(t, err)
	assert.Equal(t, "| k | v |\n| --- | --- |\n| a | 1 |\n", got)
}

func TestSanitizeDropsScriptsAndHandlers(t *testing.T) {
	out := SanitizeHTML(`<p onclick="x()">hi</p><style>p{}</style><script>evil()</script>`)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "evil")
	assert.NotContains(t, out, "onclick")
	assert.Contains(t, out, "hi")
}

func TestCleanupMarkdown(t *testing.T) {
	assert.Equal(t, "a\n\nb\n", cleanupMarkdown("\n\na  \n\n\n\n\nb\t\n\n"))
	assert.Equal(t, "", cleanupMarkdown("\n\n"))
}
