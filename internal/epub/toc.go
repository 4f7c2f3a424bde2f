package epub

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Resolver errors.
var (
	ErrMalformedContainer = errors.New("epub: malformed container.xml")
	ErrMalformedPackage   = errors.New("epub: malformed package document")
	ErrMalformedToc       = errors.New("epub: malformed table of contents")
	ErrDanglingSpineRef   = errors.New("epub: spine references id missing from manifest")
)

const containerEntry = "META-INF/container.xml"

// Chapter is one spine entry with its display title resolved.
type Chapter struct {
	Title string
	Path  string
}

// Chapters resolves the package document into the ordered chapter list.
// Titles come from whichever table-of-contents dialect the package declares:
// version 3.0 packages carry an XHTML navigation document, older ones an NCX
// tree. A spine entry with no TOC entry falls back to its zero-based
// position as the title.
func (c *Container) Chapters(log *zap.Logger) ([]Chapter, error) {
	opfPath, err := c.rootfilePath()
	if err != nil {
		return nil, err
	}
	log.Debug("Found package document", zap.String("path", opfPath))

	text, err := c.ReadEntry(opfPath)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedPackage)
	}

	var manifestEl, spineEl *etree.Element
	for _, child := range root.ChildElements() {
		switch child.Tag {
		case "manifest":
			manifestEl = child
		case "spine":
			spineEl = child
		}
	}
	if manifestEl == nil {
		return nil, fmt.Errorf("%w: missing manifest", ErrMalformedPackage)
	}
	if spineEl == nil {
		return nil, fmt.Errorf("%w: missing spine", ErrMalformedPackage)
	}

	// The manifest map is drained as the spine consumes it, so the items
	// left over afterwards are exactly the non-content resources the TOC
	// lookup below needs (the legacy dialect finds its NCX there).
	manifest := make(map[string]string)
	navHref := ""
	for _, item := range manifestEl.ChildElements() {
		id := item.SelectAttrValue("id", "")
		href := item.SelectAttrValue("href", "")
		if id == "" || href == "" {
			return nil, fmt.Errorf("%w: manifest item missing id or href", ErrMalformedPackage)
		}
		if navHref == "" && hasProperty(item.SelectAttrValue("properties", ""), "nav") {
			navHref = href
		}
		manifest[id] = href
	}

	var hrefs []string
	for _, ref := range spineEl.ChildElements() {
		idref := ref.SelectAttrValue("idref", "")
		if idref == "" {
			return nil, fmt.Errorf("%w: spine itemref missing idref", ErrMalformedPackage)
		}
		href, ok := manifest[idref]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrDanglingSpineRef, idref)
		}
		delete(manifest, idref)
		hrefs = append(hrefs, href)
	}
	log.Debug("Resolved spine", zap.Int("items", len(hrefs)))

	rootDir := path.Dir(opfPath)
	var toc map[string]string
	if root.SelectAttrValue("version", "") == "3.0" {
		if navHref == "" {
			return nil, fmt.Errorf("%w: no manifest item with the nav property", ErrMalformedToc)
		}
		toc, err = c.navDocTitles(path.Join(rootDir, navHref))
	} else {
		ncxHref, ok := manifest["ncx"]
		if !ok {
			return nil, fmt.Errorf("%w: no manifest item with id %q", ErrMalformedToc, "ncx")
		}
		toc, err = c.ncxTitles(path.Join(rootDir, ncxHref))
	}
	if err != nil {
		return nil, err
	}
	log.Debug("Resolved table of contents", zap.Int("entries", len(toc)))

	chapters := make([]Chapter, len(hrefs))
	for i, href := range hrefs {
		title, ok := toc[href]
		if ok {
			delete(toc, href)
		} else {
			title = strconv.Itoa(i)
		}
		chapters[i] = Chapter{Title: title, Path: path.Join(rootDir, href)}
	}
	return chapters, nil
}

// rootfilePath reads the container pointer and returns the package document
// path declared by its first rootfile element.
func (c *Container) rootfilePath() (string, error) {
	text, err := c.ReadEntry(containerEntry)
	if err != nil {
		return "", err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	rootfile := doc.FindElement("//rootfile")
	if rootfile == nil {
		return "", fmt.Errorf("%w: no rootfile element", ErrMalformedContainer)
	}
	opfPath := rootfile.SelectAttrValue("full-path", "")
	if opfPath == "" {
		return "", fmt.Errorf("%w: rootfile has no full-path", ErrMalformedContainer)
	}
	return opfPath, nil
}

// navDocTitles maps raw link hrefs to titles from a version 3 navigation
// document. Titles concatenate every text node under the link, so they may
// be empty for image-only links.
func (c *Container) navDocTitles(name string) (map[string]string, error) {
	text, err := c.ReadEntry(name)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToc, err)
	}
	nav := findElement(doc, atom.Nav)
	if nav == nil {
		return nil, fmt.Errorf("%w: no nav element in %s", ErrMalformedToc, name)
	}

	titles := make(map[string]string)
	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			href, ok := attrValue(n, "href")
			if !ok {
				return fmt.Errorf("%w: nav link without href", ErrMalformedToc)
			}
			titles[href] = textContent(n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(nav); err != nil {
		return nil, err
	}
	return titles, nil
}

// ncxTitles maps raw content srcs to labels from a legacy NCX document.
// Nested navPoints are flattened; a navPoint without a content pointer or a
// label is a hard error rather than a skipped row.
func (c *Container) ncxTitles(name string) (map[string]string, error) {
	text, err := c.ReadEntry(name)
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToc, err)
	}
	navMap := doc.FindElement("//navMap")
	if navMap == nil {
		return nil, fmt.Errorf("%w: no navMap element in %s", ErrMalformedToc, name)
	}

	titles := make(map[string]string)
	for _, navPoint := range navMap.FindElements(".//navPoint") {
		content := navPoint.FindElement(".//content")
		if content == nil {
			return nil, fmt.Errorf("%w: navPoint without content", ErrMalformedToc)
		}
		src := content.SelectAttrValue("src", "")
		if src == "" {
			return nil, fmt.Errorf("%w: navPoint content without src", ErrMalformedToc)
		}
		label := navPoint.FindElement(".//text")
		if label == nil {
			return nil, fmt.Errorf("%w: navPoint without label text", ErrMalformedToc)
		}
		titles[src] = label.Text()
	}
	return titles, nil
}

// hasProperty reports whether the whitespace-separated property list names
// want.
func hasProperty(list, want string) bool {
	for _, p := range strings.Fields(list) {
		if p == want {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, a); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}
