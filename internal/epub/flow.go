package epub

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMalformedChapter reports a chapter document the markup parser rejects.
var ErrMalformedChapter = errors.New("epub: malformed chapter document")

// Emphasis toggles carried through flowing and wrapping as ordinary text
// fragments; the terminal interprets them when the line is printed.
const (
	boldOn  = "\x1b[1m"
	boldOff = "\x1b[0m"
)

// Line is one logical line of flowed chapter text, kept as the fragments
// that produced it.
type Line []string

// Text joins the line's fragments without separators.
func (l Line) Text() string {
	return strings.Join(l, "")
}

// Flow flattens a chapter document's body into logical lines. Headings land
// on their own lines bracketed by emphasis toggles, paragraphs and block
// quotes get a separating empty line on both sides, list items a "- "
// prefix, and line breaks open a fresh line. Text in any other element
// joins whatever line is currently open.
func Flow(content string) ([]Line, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedChapter, err)
	}

	lines := []Line{{}}

	var walk func(*html.Node)
	walkChildren := func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if strings.TrimSpace(n.Data) != "" {
				lines[len(lines)-1] = append(lines[len(lines)-1], n.Data)
			}
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				lines = append(lines, Line{boldOn})
				walkChildren(n)
				lines = append(lines, Line{boldOff})
				return
			case atom.P, atom.Blockquote:
				lines = append(lines, Line{})
				walkChildren(n)
				lines = append(lines, Line{})
				return
			case atom.Li:
				lines = append(lines, Line{"- "})
				walkChildren(n)
				lines = append(lines, Line{})
				return
			case atom.Br:
				lines = append(lines, Line{})
				return
			}
		}
		walkChildren(n)
	}

	if body := findElement(doc, atom.Body); body != nil {
		walk(body)
	}
	return lines, nil
}
