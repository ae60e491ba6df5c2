package toolset

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoFormPage = `<html><body>
<h1>Login</h1>
<form id="login">
  <input id="username" name="username" type="text">
  <input name="password" type="password">
  <input type="checkbox">
</form>
<form><input type="search" name="q"></form>
%s
</body></html>`

func scrapeWith(t *testing.T, markup, text string) Result {
	t.Helper()
	page := newFakePage("http://target.local/login")
	page.markup = func(*fakePage) string { return markup }
	page.text = func(*fakePage) string { return text }
	ts, _ := newTestToolset(t, page)
	return ts.Call(context.Background(), ToolScrapePage, "scrape")
}

func TestScrapePage_FormsAndButtons(t *testing.T) {
	tests := []struct {
		name         string
		button       string
		wantSelector string
	}{
		{
			name:         "button with id",
			button:       `<button id="login-btn" type="submit">Sign in</button>`,
			wantSelector: "Button: 'Sign in' (selector: #login-btn)",
		},
		{
			name:         "button without id",
			button:       `<button type="submit"> <span>Sign</span> <b>in</b> </button>`,
			wantSelector: "Button: 'Signin' (selector: button:has-text('Signin'))",
		},
		{
			name:         "submit input without id",
			button:       `<input type="submit" value="Log in">`,
			wantSelector: "Button: 'Log in' (selector: input[type='submit'])",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markup := strings.Replace(twoFormPage, "%s", tt.button, 1)
			res := scrapeWith(t, markup, "Login page")
			require.True(t, res.OK)

			out := res.String()
			assert.True(t, strings.HasPrefix(out, "=== PAGE CONTENT ===\nLogin page..."))
			assert.Contains(t, out, "=== FORMS DETECTED ===")
			assert.Contains(t, out, "Form 1: 3 inputs")
			assert.Contains(t, out, "  - text input: username (selector: #username)")
			assert.Contains(t, out, "  - password input: password (selector: input[name='password'])")
			assert.Contains(t, out, "  - checkbox input: unnamed (selector: input[type='checkbox'])")
			assert.Contains(t, out, "Form 2: 1 inputs")
			assert.Contains(t, out, "  - search input: q (selector: input[name='q'])")
			assert.Contains(t, out, "=== BUTTONS DETECTED ===")
			assert.Contains(t, out, tt.wantSelector)
			assert.Less(t, strings.Index(out, "Form 1"), strings.Index(out, "Form 2"))
		})
	}
}

func TestScrapePage_TruncatesContent(t *testing.T) {
	res := scrapeWith(t, "<html><body></body></html>", strings.Repeat("a", 1500))
	require.True(t, res.OK)
	assert.Equal(t, "=== PAGE CONTENT ===\n"+strings.Repeat("a", 1000)+"...", res.String())
}

func TestScrapePage_RetrievalFailures(t *testing.T) {
	page := newFakePage("http://target.local/login")
	page.contentErr[browser.FormatText] = errors.New("detached")
	page.contentErr[browser.FormatHTML] = errors.New("detached")
	ts, _ := newTestToolset(t, page)

	res := ts.Call(context.Background(), ToolScrapePage, "")
	require.True(t, res.OK)
	assert.Contains(t, res.Message, textPlaceholder)
	assert.NotContains(t, res.Message, "FORMS DETECTED")
}

func TestSummarize_DocumentOrder(t *testing.T) {
	markup := `<form><input id="a"><input type="submit" id="s1"></form>
<button>First</button><input type="submit"><button id="b2">Second</button>`

	s := Summarize("", markup)
	require.Len(t, s.Forms, 1)
	require.Len(t, s.Forms[0].Inputs, 2)
	assert.Equal(t, "#a", s.Forms[0].Inputs[0].Selector)
	assert.Equal(t, "#s1", s.Forms[0].Inputs[1].Selector)

	var selectors []string
	for _, b := range s.Buttons {
		selectors = append(selectors, b.Selector)
	}
	assert.Equal(t, []string{"button:has-text('First')", "#b2", "#s1", "input[type='submit']"}, selectors)
}
