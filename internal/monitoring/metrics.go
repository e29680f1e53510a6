package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ListingsProcessed prometheus.Counter
	LeadsAccepted     prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	ScrollRounds      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	JobsTotal         *prometheus.CounterVec
	ScrapeDuration    prometheus.Histogram
}

// NewMetrics registers the scraper metrics on reg. Pass
// prometheus.DefaultRegisterer in the service; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ListingsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadscraper_listings_processed_total",
			Help: "The total number of feed listings examined",
		}),
		LeadsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadscraper_leads_accepted_total",
			Help: "The total number of leads returned to callers",
		}),
		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadscraper_duplicates_skipped_total",
			Help: "The total number of listings dropped as duplicates",
		}),
		ScrollRounds: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadscraper_scroll_rounds_total",
			Help: "The total number of feed scroll rounds issued",
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscraper_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'scrape_failed', 'detail_failed', 'db_save_failed'
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscraper_jobs_total",
			Help: "The total number of scrape jobs by final status",
		}, []string{"status"}),
		ScrapeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadscraper_scrape_duration_seconds",
			Help:    "Wall time of complete scrape runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *Metrics) IncListingsProcessed() {
	m.ListingsProcessed.Inc()
}

func (m *Metrics) IncLeadsAccepted() {
	m.LeadsAccepted.Inc()
}

func (m *Metrics) IncDuplicatesSkipped() {
	m.DuplicatesSkipped.Inc()
}

func (m *Metrics) IncScrollRounds() {
	m.ScrollRounds.Inc()
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncJobsTotal(status string) {
	m.JobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveScrapeDuration(d time.Duration) {
	m.ScrapeDuration.Observe(d.Seconds())
}
