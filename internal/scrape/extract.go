package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"leadscraper/internal/domain"
)

var (
	ratingValueRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	digitsRe      = regexp.MustCompile(`\d`)
)

// ExtractFeedItem parses one captured result card into raw attributes.
// Every field walks its own selector cascade and a cascade that misses
// entirely just leaves the key absent; nothing here aborts the pass.
// Deterministic: the same HTML always yields the same map.
func ExtractFeedItem(html string) domain.RawAttributes {
	raw := domain.RawAttributes{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return raw
	}

	// Business name
	if name := firstText(doc, cardNameSelectors); name != "" {
		raw["business_name"] = name
	}

	// Rating, composed with the review count when one is visible
	if rating := composeRating(firstText(doc, cardRatingSelectors), firstText(doc, cardReviewSelectors)); rating != "" {
		raw["rating"] = rating
	} else if aria := firstAttr(doc, []string{`span[aria-label*="star"]`, `span[role="img"]`}, "aria-label"); aria != "" {
		raw["rating"] = cleanText(aria)
	}

	// Address: the W4Efsd rows mix category, address, hours and phone,
	// separated by middle dots. Pick the segment that reads like a street.
	if addr := cardAddress(doc); addr != "" {
		raw["address"] = addr
	}

	// Phone, when the card shows one
	if phone := firstText(doc, cardPhoneSelectors); phone != "" {
		raw["phone:tel:"+digitsOnly(phone)] = phone
	}

	// Website button and the card's own place link
	if href := firstAttr(doc, cardWebsiteSelectors, "href"); href != "" && !isPlatformURL(href) {
		raw["website"] = href
	}
	if href := firstAttr(doc, []string{`a[href*="/maps/place/"]`}, "href"); href != "" {
		raw["maps_url"] = href
	}

	return raw
}

// ExtractDetailPane parses a captured detail pane. Named fields come off
// their cascades; everything else arrives through the generic data-item-id
// sweep, keys kept verbatim so normalization sees what the page said.
func ExtractDetailPane(html string) domain.RawAttributes {
	raw := domain.RawAttributes{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return raw
	}

	// Business name
	if name := firstText(doc, detailNameSelectors); name != "" {
		raw["business_name"] = name
	}

	// Rating + review count
	if rating := composeRating(firstText(doc, detailRatingSelectors), firstText(doc, detailReviewSelectors)); rating != "" {
		raw["rating"] = rating
	} else if aria := firstAttr(doc, []string{`span.ceNzKf`, `div.F7nice span[role="img"]`}, "aria-label"); aria != "" {
		raw["rating"] = cleanText(aria)
	}

	// Generic attribute sweep: anything the pane labels with data-item-id.
	doc.Find("[data-item-id]").Each(func(_ int, s *goquery.Selection) {
		key, _ := s.Attr("data-item-id")
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		if _, seen := raw[key]; seen {
			return
		}
		if v := sweepValue(s); v != "" {
			raw[key] = v
		}
	})

	return raw
}

// sweepValue extracts the payload of one data-item-id element: the link
// target for anchors, else the value cell text, else the element's own text.
func sweepValue(s *goquery.Selection) string {
	if s.Is("a") {
		if href, ok := s.Attr("href"); ok && href != "" {
			return strings.TrimSpace(href)
		}
	}
	if v := cleanText(s.Find("div.Io6YTe").First().Text()); v != "" {
		return v
	}
	return cleanText(s.Text())
}

// cardAddress digs the street line out of the card's W4Efsd rows.
func cardAddress(doc *goquery.Document) string {
	var addr string
	doc.Find("div.W4Efsd").Each(func(_ int, s *goquery.Selection) {
		if addr != "" {
			return
		}
		text := cleanText(s.Text())
		if text == "" {
			return
		}
		for _, seg := range strings.Split(text, "·") {
			seg = cleanText(seg)
			if looksLikeAddress(seg) {
				addr = seg
				return
			}
		}
	})
	return addr
}

// looksLikeAddress keeps segments with both digits and letters and drops
// ratings, hours and category labels.
func looksLikeAddress(seg string) bool {
	if seg == "" || len(seg) < 4 {
		return false
	}
	for _, w := range strings.Fields(strings.ToLower(seg)) {
		switch strings.Trim(w, ".,:;()!") {
		case "star", "stars", "review", "reviews", "open", "opens", "opened",
			"closed", "closes", "hour", "hours", "am", "pm":
			return false
		}
	}
	return digitsRe.MatchString(seg) && strings.IndexFunc(seg, isLetter) >= 0
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// composeRating renders "<rating> stars (<count> reviews)"; without a count
// it degrades to "<rating> stars", without a value to nothing.
func composeRating(value, reviews string) string {
	v := ratingValueRe.FindString(value)
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, ",", ".")
	if c := digitsOnly(reviews); c != "" {
		return v + " stars (" + c + " reviews)"
	}
	return v + " stars"
}

// firstText returns the first non-empty trimmed text across the cascade.
func firstText(doc *goquery.Document, sels []string) string {
	for _, sel := range sels {
		if t := cleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value across the cascade.
func firstAttr(doc *goquery.Document, sels []string, attr string) string {
	for _, sel := range sels {
		if v, ok := doc.Find(sel).First().Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// cleanText collapses runs of whitespace into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// digitsOnly strips everything but digits.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isPlatformURL reports whether href points back at the map service itself.
func isPlatformURL(href string) bool {
	lower := strings.ToLower(href)
	return strings.Contains(lower, "google.") || strings.Contains(lower, "gstatic.") || strings.Contains(lower, "/maps/")
}
