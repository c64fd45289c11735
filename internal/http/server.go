// Package http exposes the ledger over a JSON API: transactions,
// cards, invoices and monthly summaries.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	gocache "github.com/patrickmn/go-cache"

	"fluxo/internal/core"
	"fluxo/internal/services"
)

type Server struct {
	http.Server

	ledger    *services.LedgerService
	cards     *services.CardService
	invoices  *services.InvoiceService
	summaries *services.SummaryService
	expander  *services.RecurrenceExpander

	rateLimiter *rateLimiter
	metrics     *securityMetrics
	inspector   *requestInspector

	// summaryCache holds rendered summaries per (view, period). Any
	// write flushes it wholesale: summaries are cheap to rebuild and
	// partial invalidation is not worth the bookkeeping.
	summaryCache *gocache.Cache

	shutdownOnce sync.Once
}

// Options tunes the server's rate limiting, caching and proxy trust.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CacheTTL       time.Duration

	// TrustedProxies lists the CIDRs allowed to set forwarding
	// headers. Empty means loopback plus the private ranges.
	TrustedProxies []string
}

func defaultOptions() Options {
	return Options{RateLimitRPS: 10, RateLimitBurst: 20, CacheTTL: time.Minute}
}

// NewServer wires routes and middleware, returning a ready-to-run
// server.
func NewServer(
	addr string,
	ledger *services.LedgerService,
	cards *services.CardService,
	invoices *services.InvoiceService,
	summaries *services.SummaryService,
	expander *services.RecurrenceExpander,
	opts *Options,
) (*Server, error) {
	o := defaultOptions()
	if opts != nil {
		o = *opts
	}

	s := &Server{
		ledger:       ledger,
		cards:        cards,
		invoices:     invoices,
		summaries:    summaries,
		expander:     expander,
		metrics:      &securityMetrics{},
		summaryCache: gocache.New(o.CacheTTL, 2*o.CacheTTL),
	}
	inspector, err := newRequestInspector(o.TrustedProxies, s.metrics)
	if err != nil {
		return nil, err
	}
	s.inspector = inspector
	s.rateLimiter = newRateLimiter(o.RateLimitRPS, o.RateLimitBurst, s.metrics)

	r := chi.NewRouter()
	r.Use(s.withRequestLogging)
	r.Use(s.withSecurityHeaders)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.withWriteRateLimit)

			r.Post("/transactions", s.handleCreateTransaction)
			r.Patch("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.Post("/transactions/{id}/pay", s.handlePayTransaction)

			r.Post("/cards", s.handleCreateCard)
			r.Patch("/cards/{id}", s.handleUpdateCard)
			r.Delete("/cards/{id}", s.handleDeleteCard)

			r.Post("/invoices", s.handleCreateInvoice)
			r.Post("/invoices/{id}/close", s.handleCloseInvoice)
			r.Post("/invoices/{id}/pay", s.handlePayInvoice)
			r.Delete("/invoices/{id}", s.handleDeleteInvoice)
		})

		r.Get("/transactions", s.handleListTransactions)
		r.Get("/transactions/{id}", s.handleGetTransaction)

		r.Get("/cards", s.handleListCards)
		r.Get("/cards/{id}", s.handleGetCard)

		r.Get("/invoices", s.handleListInvoices)
		r.Get("/invoices/{id}", s.handleGetInvoice)

		r.Get("/summary", s.handleSummary)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Shutdown stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// invalidateSummaries drops every cached summary after a write.
func (s *Server) invalidateSummaries() {
	s.summaryCache.Flush()
}

// expandRecurring materializes recurring occurrences due up to today.
// Reads trigger it lazily so chains stay current without a scheduler.
func (s *Server) expandRecurring(ctx context.Context) {
	if s.expander == nil {
		return
	}
	if n, err := s.expander.ExpandDue(ctx, core.DateOf(time.Now())); err == nil && n > 0 {
		s.invalidateSummaries()
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
