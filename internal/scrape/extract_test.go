package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedCardHTML = `
<div class="Nv2PK THOPZb">
  <a class="hfpxzc" href="https://www.google.com/maps/place/Springfield+Beanery/data=!4m2" aria-label="Springfield Beanery"></a>
  <div class="bfdHYd">
    <div class="qBF1Pd fontHeadlineSmall">Springfield Beanery</div>
    <span class="MW4etd" aria-hidden="true">4.5</span>
    <span class="UY7F9">(120)</span>
    <div class="W4Efsd"><span>Coffee shop</span> · <span>742 Evergreen Terrace</span></div>
    <div class="W4Efsd"><span>Open</span> · <span>Closes 9 pm</span></div>
    <span class="UsdlK">+1 217-555-0182</span>
    <a data-value="Website" href="https://springfieldbeanery.com/"></a>
  </div>
</div>`

const detailPaneHTML = `
<div role="main">
  <h1 class="DUwDvf lfPIob"><span>Springfield Beanery</span></h1>
  <div class="F7nice">
    <span><span aria-hidden="true">4.5</span></span>
    <span><span aria-label="120 reviews"><span class="UY7F9">(120)</span></span></span>
  </div>
  <button data-item-id="address"><div class="Io6YTe fontBodyMedium">742 Evergreen Terrace, Springfield</div></button>
  <a data-item-id="authority" href="https://springfieldbeanery.com/"><div class="Io6YTe">springfieldbeanery.com</div></a>
  <button data-item-id="phone:tel:+12175550182"><div class="Io6YTe">+1 217-555-0182</div></button>
  <button data-item-id="oloc"><div class="Io6YTe">Located in: Springfield Mall</div></button>
  <a data-item-id="menu" href="https://springfieldbeanery.com/menu"></a>
  <a data-item-id="action:4" href="https://order.example.com/beanery"></a>
  <button data-item-id="oh"><div class="Io6YTe">Open - Closes 9 PM</div></button>
  <div data-item-id="place-info-links:">Wheelchair accessible entrance</div>
</div>`

func TestExtractFeedItemFields(t *testing.T) {
	raw := ExtractFeedItem(feedCardHTML)

	assert.Equal(t, "Springfield Beanery", raw["business_name"])
	assert.Equal(t, "4.5 stars (120 reviews)", raw["rating"])
	assert.Equal(t, "742 Evergreen Terrace", raw["address"])
	assert.Equal(t, "+1 217-555-0182", raw["phone:tel:12175550182"])
	assert.Equal(t, "https://springfieldbeanery.com/", raw["website"])
	assert.Equal(t, "https://www.google.com/maps/place/Springfield+Beanery/data=!4m2", raw["maps_url"])
}

func TestExtractFeedItemIsIdempotent(t *testing.T) {
	first := ExtractFeedItem(feedCardHTML)
	second := ExtractFeedItem(feedCardHTML)
	require.Equal(t, first, second)
}

func TestExtractFeedItemMissingFieldsStayAbsent(t *testing.T) {
	raw := ExtractFeedItem(`<div class="Nv2PK"><div class="qBF1Pd">Nameless Diner</div></div>`)

	assert.Equal(t, "Nameless Diner", raw["business_name"])
	_, hasRating := raw["rating"]
	_, hasAddress := raw["address"]
	assert.False(t, hasRating)
	assert.False(t, hasAddress)
}

func TestExtractFeedItemEmptyInput(t *testing.T) {
	assert.Empty(t, ExtractFeedItem(""))
}

func TestExtractFeedItemRatingWithoutCount(t *testing.T) {
	raw := ExtractFeedItem(`<div><span class="MW4etd">4.2</span></div>`)
	assert.Equal(t, "4.2 stars", raw["rating"])
}

func TestExtractFeedItemRatingAriaFallback(t *testing.T) {
	raw := ExtractFeedItem(`<div><span role="img" aria-label="4.8 stars 52 Reviews"></span></div>`)
	assert.Equal(t, "4.8 stars 52 Reviews", raw["rating"])
}

func TestExtractFeedItemSkipsPlatformWebsite(t *testing.T) {
	raw := ExtractFeedItem(`<div><a data-value="Website" href="https://www.google.com/maps/reserve"></a></div>`)
	_, has := raw["website"]
	assert.False(t, has)
}

func TestExtractDetailPaneFields(t *testing.T) {
	raw := ExtractDetailPane(detailPaneHTML)

	assert.Equal(t, "Springfield Beanery", raw["business_name"])
	assert.Equal(t, "4.5 stars (120 reviews)", raw["rating"])
	assert.Equal(t, "742 Evergreen Terrace, Springfield", raw["address"])
	assert.Equal(t, "https://springfieldbeanery.com/", raw["authority"])
	assert.Equal(t, "+1 217-555-0182", raw["phone:tel:+12175550182"])
	assert.Equal(t, "Located in: Springfield Mall", raw["oloc"])
	assert.Equal(t, "https://springfieldbeanery.com/menu", raw["menu"])
	assert.Equal(t, "https://order.example.com/beanery", raw["action:4"])
	assert.Equal(t, "Open - Closes 9 PM", raw["oh"])
	assert.Equal(t, "Wheelchair accessible entrance", raw["place-info-links:"])
}

func TestExtractDetailPaneIsIdempotent(t *testing.T) {
	first := ExtractDetailPane(detailPaneHTML)
	second := ExtractDetailPane(detailPaneHTML)
	require.Equal(t, first, second)
}

func TestExtractDetailPaneSweepFirstValueWins(t *testing.T) {
	html := `<div>
	  <button data-item-id="address"><div class="Io6YTe">First St 1</div></button>
	  <button data-item-id="address"><div class="Io6YTe">Second St 2</div></button>
	</div>`
	raw := ExtractDetailPane(html)
	assert.Equal(t, "First St 1", raw["address"])
}

func TestExtractDetailPaneAnchorWithoutHrefFallsBackToText(t *testing.T) {
	raw := ExtractDetailPane(`<div><a data-item-id="authority">beanery.example</a></div>`)
	assert.Equal(t, "beanery.example", raw["authority"])
}

func TestComposeRating(t *testing.T) {
	assert.Equal(t, "4.5 stars (120 reviews)", composeRating("4.5", "(120)"))
	assert.Equal(t, "4.5 stars", composeRating("4.5", ""))
	assert.Equal(t, "4.5 stars (1204 reviews)", composeRating("4.5", "(1,204)"))
	assert.Equal(t, "4.5 stars (9 reviews)", composeRating("rated 4.5 of 5", "9 reviews"))
	assert.Equal(t, "", composeRating("no rating", "12"))
}

func TestLooksLikeAddress(t *testing.T) {
	assert.True(t, looksLikeAddress("742 Evergreen Terrace"))
	assert.True(t, looksLikeAddress("12 Hampton Rd"))
	assert.False(t, looksLikeAddress("Open - Closes 9 pm"))
	assert.False(t, looksLikeAddress("4.5 (120)"))
	assert.False(t, looksLikeAddress("+1 217-555-0182"))
	assert.False(t, looksLikeAddress("Coffee shop"))
}
