package news

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockElements are rendered on their own line, so their text is separated
// from the surrounding text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "tr": true, "td": true, "th": true, "blockquote": true,
	"section": true, "article": true, "header": true, "footer": true,
}

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed and entities decoded.
func StripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return plainText(doc.Selection)
}

func plainText(sel *goquery.Selection) string {
	var b strings.Builder
	writeText(sel, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(c.Text())
		case name == "script" || name == "style" || name == "head":
		case blockElements[name]:
			b.WriteByte(' ')
			writeText(c, b)
			b.WriteByte(' ')
		default:
			writeText(c, b)
		}
	})
}

// ExtractSymbolContent extracts the paragraphs of an HTML article that
// mention symbol. Falls back to the full stripped text if none do.
func ExtractSymbolContent(rawHTML, symbol string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return StripHTML(rawHTML)
	}

	upper := strings.ToUpper(symbol)
	var matched []string
	doc.Find("p, li, h1, h2, h3, h4, h5, h6").Each(func(_ int, block *goquery.Selection) {
		plain := plainText(block)
		if plain != "" && strings.Contains(strings.ToUpper(plain), upper) {
			matched = append(matched, plain)
		}
	})
	if len(matched) > 0 {
		return strings.Join(matched, " ")
	}
	return plainText(doc.Selection)
}
