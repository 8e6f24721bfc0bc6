package api

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ppiankov/evidencecheck/internal/model"
	"github.com/ppiankov/evidencecheck/internal/pipeline"
	"github.com/ppiankov/evidencecheck/internal/worker"
)

// Analyzer is what the HTTP API needs from the pipeline
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*model.Analysis, error)
	ExtractClaims(text string) model.ClaimSet
	ClipSource(clipURL string) (pipeline.FrameSource, error)
	Config() *model.Config
}

// NewRouter registers the API routes
func NewRouter(analyzer Analyzer) *mux.Router {
	s := newServer(analyzer)

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods("GET")
	r.HandleFunc("/analyze", s.analyze).Methods("POST")
	r.HandleFunc("/analyze-text-only", s.analyzeTextOnly).Methods("POST")

	if rps := analyzer.Config().Server.ClientRPS; rps > 0 {
		r.Use(clientRateLimit(worker.NewLimiter(rps, int(rps)+1)))
	}
	return r
}

// NewHandler wraps the router with CORS, panic recovery and access logging
func NewHandler(analyzer Analyzer) http.Handler {
	cfg := analyzer.Config().Server

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigin),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return handlers.LoggingHandler(os.Stdout, handlers.RecoveryHandler()(cors(NewRouter(analyzer))))
}

// NewHTTPServer builds the server for cfg.Server.Addr
func NewHTTPServer(analyzer Analyzer) *http.Server {
	cfg := analyzer.Config().Server
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(analyzer),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func clientRateLimit(limiter *worker.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.AllowHost(clientHost(r)) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
