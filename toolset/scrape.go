package toolset

import (
	"context"
	"fmt"
	"strings"

	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	textPlaceholder = "Text content retrieval failed"
	htmlPlaceholder = "<html><body>HTML retrieval failed</body></html>"
)

// Field is an input element with a best-effort selector.
type Field struct {
	Type     string
	Name     string
	ID       string
	Selector string
}

// Form lists the inputs found inside one form element.
type Form struct {
	Inputs []Field
}

// Button is a clickable element with a best-effort selector.
type Button struct {
	Text     string
	ID       string
	Selector string
}

// PageSummary is the structured view of a page that scrape_page renders.
type PageSummary struct {
	Text    string
	Forms   []Form
	Buttons []Button
}

// Inspect fetches the current page and summarizes it. Retrieval failures are
// replaced with placeholders.
func (t *Toolset) Inspect(ctx context.Context) PageSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inspect(ctx)
}

func (t *Toolset) inspect(ctx context.Context) PageSummary {
	text := textPlaceholder
	if c, err := t.page.GetContent(ctx, browser.FormatText); err == nil {
		text = c.Raw
	} else {
		t.log(ctx).Warn(ctx, "text content retrieval failed", logger.Fields{"error": err.Error()})
	}

	markup := htmlPlaceholder
	if c, err := t.page.GetContent(ctx, browser.FormatHTML); err == nil {
		markup = c.Raw
	} else {
		t.log(ctx).Warn(ctx, "html content retrieval failed", logger.Fields{"error": err.Error()})
	}

	return Summarize(text, markup)
}

func (t *Toolset) scrapePage(ctx context.Context) Result {
	summary := t.inspect(ctx)
	return success("%s", summary.Render(t.config.ContentPreviewLimit))
}

// Summarize parses markup into forms and buttons in document order. Buttons
// are listed before submit inputs.
func Summarize(text, markup string) PageSummary {
	summary := PageSummary{Text: text}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return summary
	}

	var submits []Button
	walk(doc, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Form:
			form := Form{}
			walk(n, func(c *html.Node) {
				if c != n && c.DataAtom == atom.Input {
					form.Inputs = append(form.Inputs, inputField(c))
				}
			})
			summary.Forms = append(summary.Forms, form)
		case atom.Button:
			b := Button{Text: textOf(n), ID: attr(n, "id")}
			if b.ID != "" {
				b.Selector = "#" + b.ID
			} else {
				b.Selector = fmt.Sprintf("button:has-text('%s')", b.Text)
			}
			summary.Buttons = append(summary.Buttons, b)
		case atom.Input:
			if attr(n, "type") != "submit" {
				return
			}
			b := Button{Text: attrOr(n, "value", "Submit"), ID: attr(n, "id")}
			if b.ID != "" {
				b.Selector = "#" + b.ID
			} else {
				b.Selector = "input[type='submit']"
			}
			submits = append(submits, b)
		}
	})
	summary.Buttons = append(summary.Buttons, submits...)
	return summary
}

func inputField(n *html.Node) Field {
	f := Field{
		Type: attrOr(n, "type", "text"),
		Name: attrOr(n, "name", "unnamed"),
		ID:   attr(n, "id"),
	}
	switch {
	case f.ID != "":
		f.Selector = "#" + f.ID
	case f.Type == "submit":
		f.Selector = "input[type='submit']"
	case f.Name != "unnamed":
		f.Selector = fmt.Sprintf("input[name='%s']", f.Name)
	default:
		f.Selector = fmt.Sprintf("input[type='%s']", f.Type)
	}
	return f
}

// Render formats the summary as the scrape_page result text.
func (s PageSummary) Render(limit int) string {
	var b strings.Builder
	b.WriteString("=== PAGE CONTENT ===\n")
	b.WriteString(truncate(s.Text, limit))
	b.WriteString("...")

	if len(s.Forms) > 0 {
		b.WriteString("\n\n=== FORMS DETECTED ===")
		for i, form := range s.Forms {
			fmt.Fprintf(&b, "\nForm %d: %d inputs", i+1, len(form.Inputs))
			for _, f := range form.Inputs {
				fmt.Fprintf(&b, "\n  - %s input: %s (selector: %s)", f.Type, f.Name, f.Selector)
			}
		}
	}
	if len(s.Buttons) > 0 {
		b.WriteString("\n\n=== BUTTONS DETECTED ===")
		for _, btn := range s.Buttons {
			fmt.Fprintf(&b, "\nButton: '%s' (selector: %s)", btn.Text, btn.Selector)
		}
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func attrOr(n *html.Node, key, fallback string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return fallback
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}
