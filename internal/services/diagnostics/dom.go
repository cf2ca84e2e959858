package diagnostics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DOMSummary describes the custom elements found in a rendered document
type DOMSummary struct {
	Title    string
	Elements []CustomElement
}

// CustomElement is one custom element tag and where it occurs
type CustomElement struct {
	Tag   string
	Count int
	IDs   []string
}

// SummarizeDOM lists every custom element (a tag name containing a hyphen)
// in html, sorted by tag.
func SummarizeDOM(html string) (*DOMSummary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	summary := &DOMSummary{Title: strings.TrimSpace(doc.Find("title").First().Text())}
	byTag := make(map[string]*CustomElement)

	doc.Find("*").Each(func(i int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		if !strings.Contains(tag, "-") {
			return
		}
		el, ok := byTag[tag]
		if !ok {
			el = &CustomElement{Tag: tag}
			byTag[tag] = el
		}
		el.Count++
		if id, exists := s.Attr("id"); exists && id != "" {
			el.IDs = append(el.IDs, id)
		}
	})

	for _, el := range byTag {
		summary.Elements = append(summary.Elements, *el)
	}
	sort.Slice(summary.Elements, func(i, j int) bool {
		return summary.Elements[i].Tag < summary.Elements[j].Tag
	})
	return summary, nil
}

// Has reports whether a custom element with tag is present
func (s *DOMSummary) Has(tag string) bool {
	for _, el := range s.Elements {
		if el.Tag == tag {
			return true
		}
	}
	return false
}

func (s *DOMSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\n", s.Title)
	if len(s.Elements) == 0 {
		b.WriteString("custom elements: none\n")
		return b.String()
	}
	b.WriteString("custom elements:\n")
	for _, el := range s.Elements {
		fmt.Fprintf(&b, "  <%s> x%d", el.Tag, el.Count)
		if len(el.IDs) > 0 {
			fmt.Fprintf(&b, " #%s", strings.Join(el.IDs, " #"))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
