package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPage = `<!DOCTYPE html>
<html>
<head>
  <title> Sign in </title>
  <meta name="description" content="Log in to your account">
  <meta name="keywords" content="login, account">
  <link rel="stylesheet" href="/static/app.css">
  <style>body { color: red; }</style>
  <script>window.app = {};</script>
</head>
<body>
  <!-- header -->
  <form id="login" action="/session" method="post" onsubmit="go()">
    <label for="user">Username</label>
    <input name="user" type="text" placeholder="Username" style="width:10px">
    <button type="submit" data-test="submit">Sign in</button>
  </form>
  <noscript>Enable JavaScript</noscript>
</body>
</html>`

func TestParsePage(t *testing.T) {
	page, err := ParsePage("https://example.com/login", loginPage)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/login", page.URL)
	assert.Equal(t, "Sign in", page.Title)
	assert.Equal(t, "Log in to your account", page.MetaDescription)
	assert.Equal(t, "login, account", page.MetaKeywords)
	assert.Equal(t, "/static/app.css", page.Styles)
	assert.Equal(t, "window.app = {};", page.Scripts)
	assert.Equal(t, "Username\nSign in", page.Text)
}

func TestParsePageMarkup(t *testing.T) {
	page, err := ParsePage("https://example.com/login", loginPage)
	require.NoError(t, err)

	assert.Contains(t, page.HTML, `<form id="login" action="/session" method="post">`)
	assert.Contains(t, page.HTML, `<input name="user" type="text" placeholder="Username">`)
	assert.Contains(t, page.HTML, `<button type="submit" data-test="submit">Sign in</button>`)
	assert.Contains(t, page.HTML, `<label for="user">Username</label>`)

	for _, removed := range []string{"onsubmit", "style=", "color: red", "window.app", "Enable JavaScript", "header", "<title>"} {
		assert.NotContains(t, page.HTML, removed)
	}
}

func TestParsePageEmpty(t *testing.T) {
	page, err := ParsePage("https://example.com", "")
	require.NoError(t, err)
	assert.Empty(t, page.Title)
	assert.Empty(t, page.Text)
	assert.Empty(t, page.Scripts)
}
