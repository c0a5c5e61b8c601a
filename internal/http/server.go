package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Pinger         Pinger
	Metrics        *metrics.Metrics
	Logger         *log.Logger
	RequestTimeout time.Duration
	// RateLimit is the number of mutating requests allowed per client and
	// minute. Zero means 60.
	RateLimit int
}

// Server exposes the tracker as a JSON API.
type Server struct {
	http.Server
	tracker     *services.Tracker
	pinger      Pinger
	metrics     *metrics.Metrics
	logger      *log.Logger
	schemas     map[string]*gojsonschema.Schema
	rateLimiter *rateLimiter
	timeout     time.Duration
	started     time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, tracker *services.Tracker, opts Options) (*Server, error) {
	schemas, err := loadSchemas()
	if err != nil {
		return nil, fmt.Errorf("load request schemas: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	s := &Server{
		tracker:     tracker,
		pinger:      opts.Pinger,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		schemas:     schemas,
		rateLimiter: newRateLimiter(opts.RateLimit),
		timeout:     opts.RequestTimeout,
		started:     time.Now(),
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /healthz", s.handleHealth)
	s.handle(mux, "GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.handle(mux, "GET /api/snapshot", s.handleSnapshot)
	s.handle(mux, "GET /api/catalog", s.handleCatalog)
	s.handle(mux, "GET /api/transactions", s.handleTransactions)
	s.handle(mux, "POST /api/income", s.handleIncome)
	s.handle(mux, "POST /api/expenses", s.handleExpense)
	s.handle(mux, "POST /api/transfers", s.handleTransfer)

	s.handle(mux, "GET /api/loans", s.handleLoans)
	s.handle(mux, "POST /api/loans", s.handleDisburse)
	s.handle(mux, "POST /api/loans/{id}/repayments", s.handleRepay)
	s.handle(mux, "DELETE /api/loans/{id}", s.handleRemoveLoan)

	s.handle(mux, "GET /api/payments", s.handlePayments)
	s.handle(mux, "GET /api/payments/overdue", s.handleOverdue)
	s.handle(mux, "POST /api/payments", s.handleSchedule)
	s.handle(mux, "POST /api/payments/{id}/complete", s.handleComplete)
	s.handle(mux, "PUT /api/payments/{id}", s.handleEditPayment)
	s.handle(mux, "DELETE /api/payments/{id}", s.handleRemovePayment)

	s.handle(mux, "POST /api/month/close", s.handleCloseMonth)
	s.handle(mux, "POST /api/month/navigate", s.handleNavigate)
	s.handle(mux, "GET /api/history", s.handleHistory)
	s.handle(mux, "GET /api/history/{month}", s.handleArchive)

	var h http.Handler = mux
	h = s.withTimeout(h)
	h = s.rateLimiter.middleware(h)
	h = securityHeaders(h)
	h = log.Middleware(s.logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.RequestTimeout,
		WriteTimeout:      opts.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// handle registers h under pattern, labelled with the pattern in metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Middleware(pattern, handler)
	}
	mux.Handle(pattern, handler)
}

func (s *Server) withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
