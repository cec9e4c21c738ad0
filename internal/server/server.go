package server

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"celebSnap/internal/studio"
)

//go:embed web
var webFS embed.FS

// Options configures the HTTP server.
type Options struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New constructs the HTTP server with routes and middleware.
func New(opts Options, studioHandler studio.Handler, logger zerolog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      Router(studioHandler, logger),
		ReadTimeout:  orDefault(opts.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(opts.WriteTimeout, 120*time.Second),
		IdleTimeout:  orDefault(opts.IdleTimeout, 60*time.Second),
	}

	logger.Info().Str("addr", srv.Addr).Msg("server ready")
	return srv
}

// Router builds the route tree.
func Router(studioHandler studio.Handler, logger zerolog.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(hlog.NewHandler(logger))
	router.Use(requestIDLogger)
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/scenes", studioHandler.Scenes)
		r.Post("/generate", studioHandler.Generate)
	})

	static, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	// Serve the upload page
	router.Handle("/*", http.FileServer(http.FS(static)))

	return router
}

// requestIDLogger tags the request logger with chi's request id.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
