package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"leadscraper/internal/domain"
)

const siteHTML = `<!DOCTYPE html>
<html>
<head><script src="/wp-content/themes/cafe/app.js"></script></head>
<body>
  <p>Reach us at Info@SpringfieldBeanery.com any time.</p>
  <a href="mailto:owner@springfieldbeanery.com?subject=hello">Email the owner</a>
  <a href="https://www.instagram.com/springfieldbeanery">Instagram</a>
  <a href="https://www.facebook.com/springfieldbeanery/">Facebook</a>
  <a href="/about">About us</a>
  <img src="logo@2x.png" alt="">
</body>
</html>`

func serveHTML(t *testing.T, html string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEnrichExtractsSignals(t *testing.T) {
	srv := serveHTML(t, siteHTML)

	lead := domain.Lead{BusinessName: "Springfield Beanery", Website: srv.URL}
	e := New(2*time.Second, zap.NewNop())
	require.NoError(t, e.Enrich(context.Background(), &lead))

	assert.Equal(t, []string{
		"info@springfieldbeanery.com",
		"owner@springfieldbeanery.com",
	}, lead.Emails, "text and mailto addresses, lowercased and sorted; image names filtered")

	require.Len(t, lead.SocialLinks, 2)
	joined := strings.Join(lead.SocialLinks, " ")
	assert.Contains(t, joined, "instagram.com/springfieldbeanery")
	assert.Contains(t, joined, "facebook.com/springfieldbeanery")

	assert.Equal(t, []string{"wordpress"}, lead.Stack)
	assert.Contains(t, lead.Notes, "Technologies: wordpress")
	assert.Contains(t, lead.Notes, "Social profiles: instagram, facebook")
}

func TestEnrichWithoutWebsiteOnlyAnnotates(t *testing.T) {
	lead := domain.Lead{BusinessName: "Cash Only Diner", Phone: "+1 217-555-0199"}
	e := New(time.Second, zap.NewNop())
	require.NoError(t, e.Enrich(context.Background(), &lead))

	assert.Equal(t, "No website available", lead.Notes)
	assert.Empty(t, lead.Emails)
	assert.True(t, lead.Usable(), "the lead survives untouched")
}

func TestEnrichUnreachableSiteDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections from here on

	lead := domain.Lead{BusinessName: "Gone Fishing", Website: srv.URL}
	e := New(time.Second, zap.NewNop())
	require.NoError(t, e.Enrich(context.Background(), &lead))

	assert.Equal(t, "Website unreachable", lead.Notes)
	assert.Empty(t, lead.Emails)
}

func TestEnrichNon200Annotates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	lead := domain.Lead{BusinessName: "Moved Away", Website: srv.URL}
	e := New(time.Second, zap.NewNop())
	require.NoError(t, e.Enrich(context.Background(), &lead))

	assert.Equal(t, "Website returned HTTP 404", lead.Notes)
}

func TestEnrichSendsBrowserHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, "<html></html>")
	}))
	t.Cleanup(srv.Close)

	lead := domain.Lead{Website: srv.URL}
	e := New(time.Second, zap.NewNop())
	require.NoError(t, e.Enrich(context.Background(), &lead))
	assert.Contains(t, gotUA, "Mozilla/5.0", "sites gate on a browser user agent")
}

func TestEnrichCanceledContext(t *testing.T) {
	srv := serveHTML(t, siteHTML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lead := domain.Lead{Website: srv.URL}
	e := New(time.Second, zap.NewNop())
	assert.ErrorIs(t, e.Enrich(ctx, &lead), context.Canceled)
}

func TestEnrichAllPreservesOrder(t *testing.T) {
	srv := serveHTML(t, siteHTML)

	leads := make([]domain.Lead, 6)
	for i := range leads {
		leads[i] = domain.Lead{BusinessName: fmt.Sprintf("Biz %d", i), Website: srv.URL}
	}
	leads[3].Website = "" // one without a site, mixed in

	e := New(2*time.Second, zap.NewNop())
	out := e.EnrichAll(context.Background(), leads, 3)

	require.Len(t, out, 6)
	for i, l := range out {
		assert.Equal(t, fmt.Sprintf("Biz %d", i), l.BusinessName, "positions survive concurrent enrichment")
		if i == 3 {
			assert.Equal(t, "No website available", l.Notes)
			continue
		}
		assert.NotEmpty(t, l.Emails)
	}
}
