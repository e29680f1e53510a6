package scrape

import (
	"strings"

	"leadscraper/internal/domain"
)

// addressOverlapThreshold is the token-overlap ratio above which two
// addresses are treated as the same place.
const addressOverlapThreshold = 0.7

// IsDuplicate reports whether candidate matches any already-collected lead.
// Two leads are the same business when any one signal agrees: the name
// (case-insensitive), the phone (digits only) or the address (token
// overlap). Leads without a comparable field on both sides never match.
func IsDuplicate(existing []domain.Lead, candidate domain.Lead) bool {
	for i := range existing {
		if sameBusiness(existing[i], candidate) {
			return true
		}
	}
	return false
}

func sameBusiness(a, b domain.Lead) bool {
	an, bn := strings.TrimSpace(a.BusinessName), strings.TrimSpace(b.BusinessName)
	if an != "" && bn != "" && strings.EqualFold(an, bn) {
		return true
	}

	ap, bp := digitsOnly(a.Phone), digitsOnly(b.Phone)
	if ap != "" && bp != "" && ap == bp {
		return true
	}

	if a.Address != "" && b.Address != "" &&
		addressOverlap(a.Address, b.Address) > addressOverlapThreshold {
		return true
	}
	return false
}

// addressOverlap computes |A∩B| / max(|A|, |B|) over lowercase word sets.
func addressOverlap(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	shared := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			shared++
		}
	}
	larger := len(as)
	if len(bs) > larger {
		larger = len(bs)
	}
	return float64(shared) / float64(larger)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(s)) {
		set[t] = struct{}{}
	}
	return set
}
