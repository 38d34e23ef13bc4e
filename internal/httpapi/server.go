// Package httpapi exposes the orchestrator's REST surfaces: the chat
// webhook, the checkout hand-off endpoints, the payment webhook and the
// admin approval endpoint.
package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/engine"
	"github.com/ShreyashF130/copit-backend/internal/reconciler"
	"github.com/ShreyashF130/copit-backend/internal/token"
)

// AddressRepo is the repository slice the hand-off endpoints need.
type AddressRepo interface {
	LatestAddress(ctx context.Context, shopperID string) (*domain.Address, error)
	CreateAddress(ctx context.Context, addr *domain.Address) (int64, error)
}

// Config carries the HTTP-surface settings.
type Config struct {
	// VerifyToken answers the chat provider's webhook subscription
	// challenge.
	VerifyToken string
	// AdminSecret guards /verify-order. Compared in constant time.
	AdminSecret string
	// CheckoutBaseURL prefixes generated hand-off links.
	CheckoutBaseURL string
	// ChatDeepLink is where /confirm-address bounces the shopper back to.
	ChatDeepLink string
	// MaxBodySize caps inbound request bodies.
	MaxBodySize int64
}

type Server struct {
	engine     *engine.Engine
	reconciler *reconciler.Reconciler
	tokens     *token.Issuer
	repo       AddressRepo
	cfg        Config
	logger     *slog.Logger
}

func NewServer(eng *engine.Engine, rec *reconciler.Reconciler, tokens *token.Issuer,
	repo AddressRepo, cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 1 << 20
	}
	return &Server{
		engine:     eng,
		reconciler: rec,
		tokens:     tokens,
		repo:       repo,
		cfg:        cfg,
		logger:     logger,
	}
}

// Handler builds the routed, instrumented handler tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.limitBody)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/webhook", s.verifyWebhook)
	r.Post("/webhook", s.receiveMessage)

	r.Post("/generate-link", s.generateLink)
	r.Get("/session/{token}", s.sessionData)
	r.Post("/confirm-address", s.confirmAddress)

	r.Post("/webhooks/payment", s.paymentWebhook)
	r.With(s.requireAdmin).Post("/verify-order", s.verifyOrder)

	return otelhttp.NewHandler(r, "httpapi")
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodySize)
		next.ServeHTTP(w, r)
	})
}

// requireAdmin gates the manual-override endpoint behind a shared secret.
// Constant-time compare so the header cannot be probed byte by byte.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Admin-Secret")
		if s.cfg.AdminSecret == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminSecret)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid admin secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}
