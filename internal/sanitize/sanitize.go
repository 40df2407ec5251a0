// Package sanitize turns an HTML document into filtered plain text.
//
// The transformation has two stages. Render produces a readable text
// rendering of the document: hyperlinks are reduced to their anchor text,
// images and non-content elements are dropped, and block elements are
// separated by line breaks. Clean then keeps only printable ASCII and the
// Cyrillic alphabet, removes CR, TAB and LF, and collapses runs of spaces.
// Text combines the two and also breaks up any '<' or '&' that an HTML
// parser would read as markup, so its output renders back to itself.
//
// All stages are pure: identical input always yields identical output.
package sanitize

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// droppedSelector matches elements whose content never reaches the text
// rendering.
const droppedSelector = "head, script, style, noscript, template, " +
	"img, picture, svg, canvas, video, audio, iframe, object, embed, map"

// blockElements start and end on their own line in the rendering.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true,
	atom.Blockquote: true, atom.Dd: true, atom.Div: true,
	atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true,
	atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Td: true,
	atom.Th: true, atom.Tr: true, atom.Ul: true,
	atom.Body: true, atom.Title: true,
}

// lineBreak separates blocks. The leading space keeps words of adjacent
// blocks apart once Clean removes the newline.
const lineBreak = " \n"

// Text renders src to text and filters it.
// Text(Text(s)) == Text(s) for every s.
func Text(src string) string {
	return defuse(Clean(Render(src)))
}

// defuse inserts a space after every '<' that would open a tag, comment
// or declaration and after every '&' that would start a character
// reference. Decoded entities such as "&lt;b&gt;" would otherwise turn
// into markup when the text is rendered again.
func defuse(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		b.WriteByte(c)
		if i+1 == len(s) {
			break
		}
		next := s[i+1]
		switch {
		case c == '<' && (isASCIILetter(next) || next == '/' || next == '!' || next == '?'):
			b.WriteByte(' ')
		case c == '&' && (isASCIILetter(next) || isASCIIDigit(next) || next == '#'):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Render produces the text rendering of an HTML document.
// Link targets and images are not part of the output; anchor text is.
func Render(src string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		// Parsing from a strings.Reader does not fail in practice; fall
		// back to the raw input so the caller still gets filtered text.
		return src
	}

	doc.Find(droppedSelector).Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		renderNode(&b, n)
	}
	return b.String()
}

// renderNode writes the text content of n and its descendants.
func renderNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		writeCollapsed(b, n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Br {
			b.WriteString(lineBreak)
			return
		}
	case html.DocumentNode:
	default:
		// Comments, doctypes and raw nodes carry no visible text.
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		b.WriteString(lineBreak)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c)
	}
	if block {
		b.WriteString(lineBreak)
	}
}

// writeCollapsed writes s with every whitespace run reduced to one space,
// the way a browser lays out inline text.
func writeCollapsed(b *strings.Builder, s string) {
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
}

// Clean filters text to the allowed alphabet, removes CR, TAB and LF,
// collapses runs of spaces and trims surrounding spaces.
// Clean is idempotent.
func Clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevSpace := false
	for _, r := range s {
		if !IsAllowed(r) {
			continue
		}
		switch r {
		case '\r', '\t', '\n':
			continue
		case ' ':
			if prevSpace {
				continue
			}
			prevSpace = true
		default:
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), " ")
}

// IsAllowed reports whether r survives the character filter: printable
// ASCII, CR, TAB, LF and the Russian Cyrillic alphabet in both cases
// (including Ё and ё).
func IsAllowed(r rune) bool {
	switch {
	case r >= 0x20 && r <= 0x7e:
		return true
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r >= 'А' && r <= 'я':
		return true
	case r == 'Ё' || r == 'ё':
		return true
	default:
		return false
	}
}
