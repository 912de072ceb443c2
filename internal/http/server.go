package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "remesas/internal/log"
	"remesas/internal/middleware/ratelimit"
	"remesas/internal/middleware/security"
	"remesas/internal/middleware/trace"
	"remesas/internal/services"
)

// Services are the application services the API exposes.
type Services struct {
	Catalog *services.CatalogService
	Budget  *services.BudgetService
	Remesas *services.RemesaService
	Import  *services.ImportService
	Export  *services.ExportService
}

// Options tune the server. Zero values take the defaults.
type Options struct {
	MaxUploadBytes int64
	RateLimit      ratelimit.Config
	Logger         *applog.Logger
	// Ready reports whether dependencies are usable; nil means always.
	Ready func(ctx context.Context) error
}

const defaultMaxUpload = 10 << 20

type Server struct {
	http.Server
	svc          Services
	maxUpload    int64
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	ready        func(ctx context.Context) error
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, svc Services, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	if opts.RateLimit.RequestsPerMinute <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}

	s := &Server{
		svc:       svc,
		maxUpload: opts.MaxUploadBytes,
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  security.NewDetector(),
		ready:     opts.Ready,
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	// projects and catalog
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PUT /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)

	mux.HandleFunc("GET /api/projects/{id}/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/projects/{id}/categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.handleRenameCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/projects/{id}/concepts", s.handleListConcepts)
	mux.HandleFunc("POST /api/categories/{id}/concepts", s.handleCreateConcept)
	mux.HandleFunc("PUT /api/concepts/{id}", s.handleRenameConcept)
	mux.HandleFunc("DELETE /api/concepts/{id}", s.handleDeleteConcept)

	mux.HandleFunc("GET /api/projects/{id}/contractors", s.handleListContractors)
	mux.HandleFunc("POST /api/projects/{id}/contractors", s.handleCreateContractor)
	mux.HandleFunc("GET /api/contractors/{id}", s.handleGetContractor)
	mux.HandleFunc("PUT /api/contractors/{id}", s.handleUpdateContractor)
	mux.HandleFunc("DELETE /api/contractors/{id}", s.handleDeleteContractor)

	mux.HandleFunc("GET /api/exchange-rates", s.handleListExchangeRates)
	mux.HandleFunc("POST /api/exchange-rates", s.handleCreateExchangeRate)
	mux.HandleFunc("GET /api/exchange-rates/latest", s.handleLatestExchangeRate)
	mux.HandleFunc("DELETE /api/exchange-rates/{id}", s.handleDeleteExchangeRate)

	// budget
	mux.HandleFunc("GET /api/projects/{id}/budget", s.handleListBudget)
	mux.HandleFunc("POST /api/projects/{id}/budget", s.handleCreateBudgetItem)
	mux.HandleFunc("POST /api/projects/{id}/budget/import", s.handleImportBudget)
	mux.HandleFunc("GET /api/projects/{id}/budget/tree", s.handleBudgetTree)
	mux.HandleFunc("GET /api/projects/{id}/budget-vs-paid", s.handleBudgetVsPaid)
	mux.HandleFunc("GET /api/projects/{id}/paid-by-contractor", s.handlePaidByContractor)
	mux.HandleFunc("GET /api/budget/{id}", s.handleGetBudgetItem)
	mux.HandleFunc("PUT /api/budget/{id}", s.handleUpdateBudgetItem)
	mux.HandleFunc("DELETE /api/budget/{id}", s.handleDeleteBudgetItem)

	// remesas
	mux.HandleFunc("GET /api/projects/{id}/remesas", s.handleListRemesas)
	mux.HandleFunc("POST /api/projects/{id}/remesas", s.handleCreateRemesa)
	mux.HandleFunc("GET /api/projects/{id}/remesas/next-number", s.handleNextNumber)
	mux.HandleFunc("POST /api/projects/{id}/remesas/import", s.handleImportRemesa)
	mux.HandleFunc("POST /api/projects/{id}/history/import", s.handleImportHistory)
	mux.HandleFunc("GET /api/remesas/{id}", s.handleGetRemesa)
	mux.HandleFunc("PUT /api/remesas/{id}", s.handleUpdateRemesa)
	mux.HandleFunc("DELETE /api/remesas/{id}", s.handleDeleteRemesa)
	mux.HandleFunc("PUT /api/remesas/{id}/items", s.handleReplaceItems)
	mux.HandleFunc("POST /api/remesas/{id}/items", s.handleAddItem)
	mux.HandleFunc("POST /api/remesas/{id}/send", s.handleSendRemesa)
	mux.HandleFunc("POST /api/remesas/{id}/approve-all", s.handleApproveAll)
	mux.HandleFunc("GET /api/remesas/{id}/export", s.handleExportRemesa)
	mux.HandleFunc("PUT /api/items/{id}", s.handleUpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)
	mux.HandleFunc("POST /api/items/{id}/approve", s.handleApproveItem)
	mux.HandleFunc("POST /api/items/{id}/unapprove", s.handleUnapproveItem)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).
		WarnContext(r.Context(), "Rate limit exceeded", applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// Shutdown stops the limiter and then the HTTP server. Only the first call
// has effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics returns the request counters of the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
