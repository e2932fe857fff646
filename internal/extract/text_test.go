package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleText_PrefersArticleBlocks(t *testing.T) {
	page := `<html><head><title>T</title><style>p{}</style></head><body>
<header><p>Site header</p></header>
<nav><li>Home</li></nav>
<article>
  <h1>Vendor X ships Y</h1>
  <p>Vendor X <b>launched</b> product Y on Tuesday.</p>
  <script>track()</script>
  <p>  Pricing   starts at $10. </p>
  <aside><p>Related stories</p></aside>
</article>
<footer><p>Copyright</p></footer>
</body></html>`

	text, err := ArticleText(page)
	require.NoError(t, err)
	assert.Equal(t, "Vendor X ships Y\nVendor X launched product Y on Tuesday.\nPricing starts at $10.", text)
}

func TestArticleText_FallsBackToMainThenBody(t *testing.T) {
	text, err := ArticleText(`<body><div>ignored?</div><main><p>Main body</p></main></body>`)
	require.NoError(t, err)
	assert.Equal(t, "Main body", text)

	text, err = ArticleText(`<body><div>Just a div with text</div><script>x()</script></body>`)
	require.NoError(t, err)
	assert.Equal(t, "Just a div with text", text)
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain   summary\ntext", "plain summary text"},
		{"Fish &amp; chips", "Fish & chips"},
		{`<p>First <a href="x">link</a></p><p>Second</p>`, "First link Second"},
		{`<img src="a.png"><script>bad()</script>Tail`, "Tail"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlainText(tt.in), tt.in)
	}
}
