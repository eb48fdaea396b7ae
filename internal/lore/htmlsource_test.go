package lore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertIfHTMLPlainText(t *testing.T) {
	in := "Once upon a time a fox lived by the river."
	out, converted := ConvertIfHTML(in)
	require.False(t, converted)
	require.Equal(t, in, out)
}

func TestConvertIfHTMLDocument(t *testing.T) {
	in := `<!DOCTYPE html>
<html><head><title>Tales</title><style>p{}</style></head>
<body>
<nav><a href="/">Home</a> menu links</nav>
<main><h1>The Fox</h1><p>Once upon a time a fox lived by the river.</p></main>
<footer>copyright</footer>
</body></html>`

	out, converted := ConvertIfHTML(in)
	require.True(t, converted)
	require.Contains(t, out, "The Fox")
	require.Contains(t, out, "Once upon a time a fox lived by the river.")
	require.NotContains(t, out, "menu links")
	require.NotContains(t, out, "copyright")
	require.NotContains(t, out, "<p>")
}

func TestIsHTML(t *testing.T) {
	require.True(t, isHTML("<html><body>x</body></html>"))
	require.True(t, isHTML("<div><p>a</p><span>b</span></div>"))
	require.False(t, isHTML("a < b and c > d"))
	require.False(t, isHTML("<b>only one tag</b>"))
}
