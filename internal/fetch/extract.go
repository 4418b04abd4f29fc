package fetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// baseNoise is page furniture removed from every document.
const baseNoise = "nav, footer, header, script, style, noscript, svg, form, iframe, .ad, .advertisement, .ads, .sidebar, .cookie-banner, .popup"

// ProductPageSelectors returns selectors for product and landing pages
// (feature lists, pricing blurbs, hero copy), most specific last.
func ProductPageSelectors() []string {
	return []string{
		"main",
		"article",
		".product-description",
		".product-content",
		"#product",
		".features",
		".hero",
		".content",
		"#content",
	}
}

// ProductNoiseSelectors returns selectors for page furniture that never
// describes the product.
func ProductNoiseSelectors() []string {
	return []string{
		".newsletter",
		".signup-form",
		".testimonial-carousel",
		"[role='dialog']",
		"[aria-hidden='true']",
	}
}

// ExtractProductText extracts a product page with the product selectors.
func ExtractProductText(html string) (string, error) {
	return ExtractMainText(html, ProductPageSelectors(), ProductNoiseSelectors()...)
}

// ExtractMainText parses HTML and returns the main content as plain text
// with light markdown: headings become "#" lines and list items "-" lines.
// The first content selector that matches wins; otherwise the body is used.
// When the content has no heading, the page title is used as one.
func ExtractMainText(html string, contentSelectors []string, noiseSelectors ...string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.Join(strings.Fields(doc.Find("head title").First().Text()), " ")

	doc.Find(baseNoise).Remove()
	if len(noiseSelectors) > 0 {
		doc.Find(strings.Join(noiseSelectors, ", ")).Remove()
	}

	var main *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			main = selection.First()
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	w := &textWriter{}
	w.walk(main, 0)
	w.flush()

	if !w.sawHeading && title != "" {
		w.lines = append([]string{"# " + title, ""}, w.lines...)
	}
	return strings.TrimSpace(strings.Join(w.lines, "\n")), nil
}

var headingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true, "aside": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"table": true, "tr": true, "blockquote": true, "pre": true, "figure": true, "figcaption": true,
}

// textWriter accumulates inline text and emits a line per block element.
type textWriter struct {
	lines      []string
	cur        strings.Builder
	prefix     string
	sawHeading bool
}

func (w *textWriter) walk(sel *goquery.Selection, listDepth int) {
	sel.Contents().Each(func(_ int, n *goquery.Selection) {
		name := goquery.NodeName(n)
		switch {
		case name == "#text":
			w.cur.WriteString(n.Text())
		case name == "#comment":
		case name == "br":
			w.flush()
		case headingLevels[name] > 0:
			w.flush()
			if len(w.lines) > 0 {
				w.lines = append(w.lines, "")
			}
			w.prefix = strings.Repeat("#", headingLevels[name]) + " "
			w.walk(n, listDepth)
			if w.flush() {
				w.sawHeading = true
			}
			w.prefix = ""
		case name == "li":
			w.flush()
			w.prefix = strings.Repeat("  ", listDepth) + "- "
			w.walk(n, listDepth+1)
			w.flush()
			w.prefix = ""
		case name == "td" || name == "th":
			w.walk(n, listDepth)
			w.cur.WriteString(" ")
		case blockTags[name]:
			w.flush()
			w.walk(n, listDepth)
			w.flush()
		default:
			w.walk(n, listDepth)
		}
	})
}

// flush emits the pending line, if it has any text. The prefix is kept
// until a line uses it.
func (w *textWriter) flush() bool {
	line := strings.Join(strings.Fields(w.cur.String()), " ")
	w.cur.Reset()
	if line == "" {
		return false
	}
	w.lines = append(w.lines, w.prefix+line)
	w.prefix = ""
	return true
}
