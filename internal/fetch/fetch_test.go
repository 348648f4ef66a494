package fetch

import (
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileHTML = `
<html>
	<head>
		<title>Alice (@alice)</title>
		<meta property="og:description" content="1,234 Followers, 56 Following, 78 Posts">
		<script>window.__data = {"secret": true}</script>
		<style>.x { color: red }</style>
	</head>
	<body>
		<header><h2>alice</h2></header>
		<main>
			<p>Photographer   based in Lisbon</p>
			<a href="/p/abc123/">first post</a>
			<a href="/p/def456/?img_index=1"><img alt="second"></a>
			<a href="/p/abc123/">first post again</a>
			<a href="/explore/">Explore</a>
			<a href="#top">top</a>
		</main>
	</body>
</html>`

func TestPageText(t *testing.T) {
	text, err := PageText(profileHTML, 0)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "Title: Alice (@alice)"))
	assert.Contains(t, text, "og:description: 1,234 Followers, 56 Following, 78 Posts")
	assert.Contains(t, text, "Photographer based in Lisbon")
	assert.Contains(t, text, "(/p/abc123/)")
	assert.NotContains(t, text, "__data")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "#top")
	assert.Equal(t, 1, strings.Count(text, "(/p/abc123/)"))
}

func TestPageText_Truncates(t *testing.T) {
	html := "<html><body><p>" + strings.Repeat("é", 500) + "</p></body></html>"
	text, err := PageText(html, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, utf8.RuneCountInString(text))
}

func TestExtractLinks(t *testing.T) {
	links, err := ExtractLinks(profileHTML, "https://site.example/alice/", func(u *url.URL) bool {
		return strings.HasPrefix(u.Path, "/p/")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://site.example/p/abc123/",
		"https://site.example/p/def456/",
	}, links)
}

func TestExtractLinks_InvalidBase(t *testing.T) {
	_, err := ExtractLinks(profileHTML, "://bad", nil)
	require.Error(t, err)

	var pageErr *Error
	assert.ErrorAs(t, err, &pageErr)
	assert.Contains(t, err.Error(), "invalid base URL")
}
