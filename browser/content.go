package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ContentFormat selects how GetContent renders the page.
type ContentFormat string

const (
	FormatHTML ContentFormat = "html"
	FormatText ContentFormat = "text"
	FormatDOM  ContentFormat = "dom"
	FormatJSON ContentFormat = "json"
)

// Content is the page in one of the supported formats. Raw is always set;
// Document is set for FormatDOM and JSON for FormatJSON.
type Content struct {
	Format   ContentFormat
	Raw      string
	Document *html.Node
	JSON     interface{}
}

// NewContent renders raw in the given format. raw is markup for FormatHTML and
// FormatDOM and body text for FormatText and FormatJSON.
func NewContent(format ContentFormat, raw string) (*Content, error) {
	c := &Content{Format: format, Raw: raw}
	switch format {
	case FormatHTML, FormatText:
	case FormatDOM:
		doc, err := html.Parse(strings.NewReader(raw))
		if err != nil {
			return nil, &ContentFormatError{Format: format, Err: err}
		}
		c.Document = doc
	case FormatJSON:
		var v interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
			return nil, &ContentFormatError{Format: format, Err: err}
		}
		c.JSON = v
	default:
		return nil, &ContentFormatError{Format: format, Err: fmt.Errorf("unsupported format %q", format)}
	}
	return c, nil
}

// usesMarkup reports whether the format is derived from the page markup
// rather than the body text.
func (f ContentFormat) usesMarkup() bool {
	return f == FormatHTML || f == FormatDOM
}
