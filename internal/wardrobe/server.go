package wardrobe

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chromacloset/chromacloset/internal/stylist"
)

// Server handles HTTP requests for the scan workflow and inventory.
type Server struct {
	service   *Service
	stylist   *stylist.Stylist
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux. stylist may be nil when
// the styling assistant is not configured.
func NewServer(service *Service, styler *stylist.Stylist, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, styler, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, styler *stylist.Stylist, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		stylist:   styler,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials.
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to responses.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth middleware.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Chromacloset"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux.
// Routes must be registered from most specific to least specific.
func (s *Server) registerRoutes() {
	// Scan workflow
	s.mux.HandleFunc("POST /api/scans/sessions/{token}/commit", s.requireAuth(s.handleCommitScan))
	s.mux.HandleFunc("DELETE /api/scans/sessions/{token}/items/{id}", s.requireAuth(s.handleRemoveCandidate))
	s.mux.HandleFunc("GET /api/scans/sessions/{token}", s.requireAuth(s.handleSessionStatus))
	s.mux.HandleFunc("DELETE /api/scans/sessions/{token}", s.requireAuth(s.handleDiscardScan))
	s.mux.HandleFunc("POST /api/scans", s.requireAuth(s.handleStartScan))

	// Inventory
	s.mux.HandleFunc("GET /api/items/{id}/image", s.requireAuth(s.handleItemImage))
	s.mux.HandleFunc("GET /api/items", s.requireAuth(s.handleListItems))
	s.mux.HandleFunc("GET /api/summary", s.requireAuth(s.handleSummary))

	// Scan history
	s.mux.HandleFunc("DELETE /api/history/{timestamp}", s.requireAuth(s.handleDeleteScanGroup))
	s.mux.HandleFunc("GET /api/history", s.requireAuth(s.handleHistory))

	// Branding and reset
	s.mux.HandleFunc("GET /api/brand-icon", s.requireAuth(s.handleGetBrandIcon))
	s.mux.HandleFunc("PUT /api/brand-icon", s.requireAuth(s.handleSetBrandIcon))
	s.mux.HandleFunc("POST /api/reset", s.requireAuth(s.handleReset))

	// Styling assistant
	s.mux.HandleFunc("POST /api/outfits", s.requireAuth(s.handleOutfits))
	s.mux.HandleFunc("GET /api/gaps", s.requireAuth(s.handleGaps))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.mux.ServeHTTP(w, r)
		})(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
