// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/record-sync/internal/circuitbreaker"
	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
	"github.com/record-sync/internal/ratelimit"
	"github.com/record-sync/internal/service"
)

// Rate limit buckets, one per protected endpoint
const (
	EndpointCustomer  = "customer"
	EndpointCustomers = "customers"
	EndpointCampaign  = "campaign"
	EndpointCampaigns = "campaigns"
)

// IngestServiceInterface fetches pages from the external sources
type IngestServiceInterface interface {
	FetchCustomers(ctx context.Context, req models.PageRequest) (*service.CustomersPage, error)
	FetchCampaigns(ctx context.Context, req models.PageRequest) (*service.CampaignsPage, error)
}

// RecordServiceInterface reads persisted records
type RecordServiceInterface interface {
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	ListCustomers(ctx context.Context, skip, limit int) ([]*models.Customer, error)
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, skip, limit int) ([]*models.Campaign, error)
}

// HealthChecker is a dependency reported by /health
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Dependencies are the collaborators the server routes requests to.
type Dependencies struct {
	Ingest  IngestServiceInterface
	Records RecordServiceInterface

	// Limiter guards the record read endpoints. nil leaves them open.
	Limiter *ratelimit.Limiter

	// IdentityHeader names the caller identity header. Default: Service-Name.
	IdentityHeader string

	// HealthChecks are pinged by /health, keyed by name
	HealthChecks map[string]HealthChecker

	// Breakers are reported by /health when set
	Breakers *circuitbreaker.Manager

	Logger *logging.Logger
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	ingest     IngestServiceInterface
	records    RecordServiceInterface
	rateLimit  *ratelimit.Middleware
	checks     map[string]HealthChecker
	breakers   *circuitbreaker.Manager
	logger     *logging.Logger
	config     *ServerConfig
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:   mux.NewRouter().StrictSlash(true),
		ingest:   deps.Ingest,
		records:  deps.Records,
		checks:   deps.HealthChecks,
		breakers: deps.Breakers,
		logger:   logger,
		config:   config,
	}
	if deps.Limiter != nil {
		s.rateLimit = ratelimit.NewMiddleware(deps.Limiter, deps.IdentityHeader, respondError)
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Order matters: the request id must be in the context before anything logs
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return logging.WithLogger(context.Background(), s.logger)
		},
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	s.router.HandleFunc("/external-crm-data", s.handleExternalCRMData).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/external-marketing-data", s.handleExternalMarketingData).Methods(http.MethodGet, http.MethodOptions)

	s.router.Handle("/customer/{id}", s.limit(EndpointCustomer, s.handleGetCustomer)).Methods(http.MethodGet, http.MethodOptions)
	s.router.Handle("/customers/", s.limit(EndpointCustomers, s.handleListCustomers)).Methods(http.MethodGet, http.MethodOptions)
	// No slash before the id: this is the published path
	s.router.Handle("/campaigns{id}", s.limit(EndpointCampaign, s.handleGetCampaign)).Methods(http.MethodGet, http.MethodOptions)
	s.router.Handle("/campaigns/", s.limit(EndpointCampaigns, s.handleListCampaigns)).Methods(http.MethodGet, http.MethodOptions)
}

func (s *Server) limit(endpoint string, h http.HandlerFunc) http.Handler {
	if s.rateLimit == nil {
		return h
	}
	return s.rateLimit.Limit(endpoint)(h)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status          string                           `json:"status"`
	Checks          map[string]string                `json:"checks"`
	CircuitBreakers map[string]*circuitbreaker.Stats `json:"circuitBreakers,omitempty"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status: "healthy",
		Checks: make(map[string]string, len(s.checks)),
	}
	status := http.StatusOK

	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	if s.breakers != nil {
		resp.CircuitBreakers = s.breakers.GetAllStats()
	}

	respondJSON(w, status, resp)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
