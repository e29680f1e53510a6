package scrape

import (
	"maps"
	"net/url"
	"slices"
	"strings"

	"leadscraper/internal/domain"
)

// nameIndicators mark raw keys whose value is a usable business name.
var nameIndicators = []string{"name:", "title:", "heading:", "place_name"}

// Normalize maps a raw attribute bag into the Lead schema. Total and
// deterministic: every field is assigned (possibly empty), and leftover keys
// are folded into notes in sorted order. The empty map yields an empty Lead.
func Normalize(raw domain.RawAttributes) domain.Lead {
	var lead domain.Lead
	if len(raw) == 0 {
		return lead
	}

	keys := slices.Sorted(maps.Keys(raw))
	consumed := make(map[string]bool, len(raw))

	// Business name: canonical key, then indicator keys, then a name
	// derived from the business's own URL.
	if v := strings.TrimSpace(raw["business_name"]); v != "" {
		lead.BusinessName = v
		consumed["business_name"] = true
	} else {
		for _, k := range keys {
			lk := strings.ToLower(k)
			for _, ind := range nameIndicators {
				if strings.Contains(lk, ind) && strings.TrimSpace(raw[k]) != "" {
					lead.BusinessName = strings.TrimSpace(raw[k])
					consumed[k] = true
					break
				}
			}
			if lead.BusinessName != "" {
				break
			}
		}
	}
	if lead.BusinessName == "" {
		for _, k := range []string{"menu", "authority"} {
			if name := nameFromURL(raw[k]); name != "" {
				lead.BusinessName = name
				break
			}
		}
	}

	// Phone: the first phone:tel: entry; the key itself carries the number
	// when the visible text was empty.
	for _, k := range keys {
		if !strings.HasPrefix(k, "phone:tel:") {
			continue
		}
		v := strings.TrimSpace(raw[k])
		if v == "" {
			v = strings.TrimPrefix(k, "phone:tel:")
		}
		lead.Phone = v
		consumed[k] = true
		break
	}

	// Website: the authority link wins over the card's website button.
	if v := strings.TrimSpace(raw["authority"]); v != "" {
		lead.Website = v
	} else {
		lead.Website = strings.TrimSpace(raw["website"])
	}
	consumed["authority"] = true
	consumed["website"] = true

	// Address
	if v := strings.TrimSpace(raw["address"]); v != "" {
		lead.Address = v
		consumed["address"] = true
	} else if v := strings.TrimSpace(raw["oloc"]); v != "" {
		lead.Address = v
		consumed["oloc"] = true
	}

	// Rating
	lead.Rating = strings.TrimSpace(raw["rating"])
	consumed["rating"] = true

	// Source URL
	lead.SourceURL = strings.TrimSpace(raw["maps_url"])
	consumed["maps_url"] = true

	// Notes: known annotations first, then every leftover pair.
	var notes []string
	if v := strings.TrimSpace(raw["menu"]); v != "" {
		notes = append(notes, "Menu: "+v)
		consumed["menu"] = true
	}
	for _, k := range keys {
		if strings.HasPrefix(k, "action:") && strings.TrimSpace(raw[k]) != "" {
			notes = append(notes, "Order: "+strings.TrimSpace(raw[k]))
			consumed[k] = true
		}
	}
	if v := strings.TrimSpace(raw["oh"]); v != "" {
		notes = append(notes, "Hours: "+v)
		consumed["oh"] = true
	}
	for _, k := range keys {
		if strings.HasPrefix(k, "place-info-links") && strings.TrimSpace(raw[k]) != "" {
			notes = append(notes, "Info: "+strings.TrimSpace(raw[k]))
			consumed[k] = true
		}
	}
	for _, k := range keys {
		if consumed[k] {
			continue
		}
		if v := strings.TrimSpace(raw[k]); v != "" {
			notes = append(notes, k+": "+v)
		}
	}
	lead.Notes = strings.Join(notes, " | ")

	return lead
}

// nameFromURL turns a business's own URL into a display name:
// "https://www.springfield-beanery.com/menu" becomes "Springfield Beanery".
// URLs on the map platform's own domains yield nothing.
func nameFromURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if strings.Contains(host, "google") || strings.HasPrefix(host, "maps.") || strings.Contains(host, "gstatic") {
		return ""
	}
	host = strings.TrimPrefix(host, "www.")
	host = strings.ReplaceAll(host, ".com", "")
	host = strings.ReplaceAll(host, "-", " ")
	host = strings.ReplaceAll(host, ".", " ")
	return titleWords(host)
}

// titleWords capitalizes the first letter of each word.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
