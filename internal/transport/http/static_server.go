package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"livedoc/internal/logging"
)

// NoCache disables client caching on every response so a reload always
// fetches the regenerated page.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// StaticServer serves files from the output directory.
type StaticServer struct {
	*server
	root string
}

// NewStaticServer creates a server for root bound to addr.
func NewStaticServer(addr, root string) *StaticServer {
	s := &StaticServer{root: root}
	s.server = &server{
		addr:    addr,
		handler: s.routes(),
		log:     logging.NewLogger("http"),
	}
	return s
}

func (s *StaticServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(NoCache)
	r.Handle("/*", http.FileServer(http.Dir(s.root)))
	return r
}

// Handler returns the router, for tests and embedding.
func (s *StaticServer) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background.
func (s *StaticServer) Start() error {
	return s.start()
}

// Addr returns the bound address.
func (s *StaticServer) Addr() string {
	return s.boundAddr()
}

// URL returns the browser URL for the served directory.
func (s *StaticServer) URL() string {
	return "http://" + s.Addr() + "/"
}

// Stop gracefully shuts down the server.
func (s *StaticServer) Stop() error {
	return s.stop()
}
