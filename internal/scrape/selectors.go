package scrape

// CSS selector cascades for the Maps result surfaces. Ordered
// best-guess-first; the locator and the extractor walk them until one hits.
// Class names rot with every frontend push, so each field carries structural
// and aria fallbacks behind the class shortcuts.

// mapsURL is the entry point every session starts from.
const mapsURL = "https://www.google.com/maps"

// Search surface.
var (
	searchBoxSelectors = []string{
		`input#searchboxinput`,
		`input[name="q"]`,
		`input[aria-label*="Search"]`,
	}
	searchButtonSelectors = []string{
		`button#searchbox-searchbutton`,
		`button[aria-label="Search"]`,
	}
)

// Results feed.
var (
	feedSelectors = []string{
		`div[role="feed"]`,
		`div.m6QErb[aria-label]`,
		`div.section-scrollbox`,
	}
	resultCardSelectors = []string{
		`div.Nv2PK`,
		`a[href*="/maps/place/"]`,
		`div.bfdHYd`,
	}
	statusRegionSelectors = []string{
		`div[role="status"]`,
		`div.section-no-result-title`,
		`div[aria-live="polite"]`,
	}
)

// Feed card fields, resolved against a card's captured HTML.
var (
	cardNameSelectors = []string{
		`div.qBF1Pd`,
		`span.fontHeadlineSmall`,
		`div.fontHeadlineSmall`,
	}
	cardRatingSelectors = []string{
		`span.MW4etd`,
		`span[aria-label*="star"]`,
	}
	cardReviewSelectors = []string{
		`span.UY7F9`,
		`span[aria-label*="review"]`,
	}
	cardPhoneSelectors = []string{
		`span.UsdlK`,
	}
	cardWebsiteSelectors = []string{
		`a[data-value="Website"]`,
	}
)

// Detail pane fields.
var (
	detailPaneSelectors = []string{
		`div[role="main"]`,
		`body`,
	}
	detailReadySelectors = []string{
		`h1.DUwDvf`,
		`h1.fontHeadlineLarge`,
		`h1`,
	}
	detailNameSelectors = []string{
		`h1.DUwDvf span`,
		`h1.DUwDvf`,
		`h1.fontHeadlineLarge`,
		`h1`,
		`div.fontHeadlineLarge`,
	}
	detailRatingSelectors = []string{
		`div.F7nice span[aria-hidden="true"]`,
		`span.ceNzKf`,
		`div.fontDisplayLarge`,
	}
	detailReviewSelectors = []string{
		`span.UY7F9`,
		`div.F7nice span[aria-label*="review"]`,
		`button[jsaction*="reviewChart"] span`,
	}
)

// Overlays that intercept clicks: modals, consent walls, app-install promos.
var dismissSelectors = []string{
	`button[aria-label="Close"]`,
	`button[jsaction*="modal.close"]`,
	`button[aria-label="Dismiss"]`,
	`button[aria-label*="Accept"]`,
}

// noResultsMarkers are the status-region phrases that mean the query
// legitimately matched nothing.
var noResultsMarkers = []string{
	"no results found",
	"can't find",
	"couldn't find",
	"doesn't match any",
}
