// Package api is the HTTP surface of the mockup studio, shared by the local
// web server and the Lambda function.
package api

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/fpang/aop-fashion-mockup/internal/s3util"
	"github.com/fpang/aop-fashion-mockup/internal/store"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

// DefaultMaxBodyBytes bounds POST /api/mockups bodies. Two base64 images of a
// few megabytes each fit comfortably.
const DefaultMaxBodyBytes = 32 << 20

// DefaultThumbnailDimension is the longest side of gallery thumbnails.
const DefaultThumbnailDimension = 400

// Config wires a Server. Only Studio is required.
type Config struct {
	Studio *studio.Studio

	// Records and Presign/Bucket back the /api/archive routes. Without
	// Records those routes answer 404.
	Records store.RecordStore
	Presign s3util.PresignGetAPI
	Bucket  string

	// Frontend, when set, is served at / with index.html as SPA fallback.
	Frontend fs.FS

	OriginVerifySecret string
	// LocalCORS allows localhost origins on the API.
	LocalCORS bool

	Version string
}

// Server holds the handlers.
type Server struct {
	cfg Config
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/garments", s.handleGarments)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/mockups", s.handleCreateMockup)
	mux.HandleFunc("GET /api/mockups", s.handleListMockups)
	mux.HandleFunc("GET /api/mockups/{id}", s.handleGetMockup)
	mux.HandleFunc("GET /api/mockups/{id}/flat.png", s.handleMockupImage("flat"))
	mux.HandleFunc("GET /api/mockups/{id}/worn.png", s.handleMockupImage("worn"))
	mux.HandleFunc("GET /api/mockups/{id}/thumbnail", s.handleThumbnail)
	mux.HandleFunc("GET /api/export.zip", s.handleExport)
	mux.HandleFunc("GET /api/archive", s.handleListArchive)
	mux.HandleFunc("GET /api/archive/{id}", s.handleGetArchive)
	// Method-scoped so a wrong method on a known route still gets 405.
	notFound := func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "not found")
	}
	mux.HandleFunc("GET /api/", notFound)
	mux.HandleFunc("POST /api/", notFound)

	if s.cfg.Frontend != nil {
		mux.Handle("GET /", frontendHandler(s.cfg.Frontend))
	}

	var handler http.Handler = mux
	if s.cfg.LocalCORS {
		handler = withCORS(handler)
	}
	handler = withOriginVerify(s.cfg.OriginVerifySecret, handler)
	handler = withMetrics(handler)
	return withLogging(handler)
}

// frontendHandler serves static files, falling back to index.html for paths
// that do not exist so client-side routes work.
func frontendHandler(frontend fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(frontend))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)

		path := r.URL.Path
		if path != "/" {
			f, err := frontend.Open(strings.TrimPrefix(path, "/"))
			if err != nil {
				r.URL.Path = "/"
			} else {
				f.Close()
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}
