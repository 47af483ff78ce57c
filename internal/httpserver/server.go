package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"printstatus/internal/event"
	"printstatus/internal/model"
	"printstatus/internal/raftnode"
	"printstatus/internal/render"
	"printstatus/internal/telemetry"
)

const DefaultMaxBodyBytes = 1 << 20

// StateReader returns the current state.
type StateReader interface {
	Current() model.JobState
}

// ClusterInfo reports raft membership for /health.
type ClusterInfo interface {
	Role() string
	Leader() string
}

// Options configures a Server.
type Options struct {
	State    StateReader
	Ingester *Ingester
	Logger   hclog.Logger
	Metrics  *telemetry.Metrics
	Cluster  ClusterInfo

	// AuthToken, when set, is required as a bearer token on every route
	// except /health.
	AuthToken    string
	MaxBodyBytes int64
	// IngestRate is the sustained /update rate per second; 0 disables
	// limiting.
	IngestRate  float64
	IngestBurst int
}

// Server is the HTTP face of the status relay.
type Server struct {
	opts    Options
	logger  hclog.Logger
	limiter *rate.Limiter
	router  *mux.Router
}

// ====== SERVER START ======

// New builds the router.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{opts: opts, logger: opts.Logger}
	if opts.IngestRate > 0 {
		burst := opts.IngestBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.IngestRate), burst)
	}

	r := mux.NewRouter()
	// mux skips Use middleware for these, so they get the chain directly.
	// A known path with the wrong verb is reported the same as an unknown path.
	notFound := s.withRequestID(s.withAccessLog(http.HandlerFunc(s.notFound)))
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound
	r.Use(s.withRequestID, s.withAccessLog)

	r.Handle("/update", s.requireToken(s.limitIngest(http.HandlerFunc(s.handleUpdate)))).Methods(http.MethodPost)
	r.Handle("/", s.requireToken(http.HandlerFunc(s.handleStatus))).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/debug/metrics", s.requireToken(opts.Metrics)).Methods(http.MethodGet)
	}

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger hclog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ====== HANDLERS ======

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "unknown: "+r.URL.Path, http.StatusNotFound)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, fmt.Sprintf("body exceeds %d bytes", tooBig.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := s.opts.Ingester.Ingest(r.Context(), raw); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	var (
		encErr   *event.EncodingError
		parseErr *event.ParseError
		malErr   *event.MalformedEventError
	)
	switch {
	case errors.As(err, &encErr), errors.As(err, &parseErr), errors.As(err, &malErr):
		return http.StatusBadRequest
	case errors.Is(err, raftnode.ErrNotLeader):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.opts.State.Current()

	if acceptsJSON(r.Header.Values("Accept")) {
		body, err := render.JSON(state)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", render.ContentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	w.Header().Set("Content-Type", render.ContentTypeText)
	w.WriteHeader(http.StatusOK)
	if err := render.Text(w, state); err != nil {
		loggerFrom(r.Context(), s.logger).Warn("write text status", "error", err)
	}
}

// acceptsJSON reports whether any Accept entry names application/json.
// Quality values are ignored.
func acceptsJSON(values []string) bool {
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			mediaType, _, _ := strings.Cut(part, ";")
			if strings.EqualFold(strings.TrimSpace(mediaType), render.ContentTypeJSON) {
				return true
			}
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", render.ContentTypeText)
	w.WriteHeader(http.StatusOK)
	if s.opts.Cluster == nil {
		_, _ = io.WriteString(w, "ok\n")
		return
	}
	fmt.Fprintf(w, "ok %s leader=%s\n", s.opts.Cluster.Role(), s.opts.Cluster.Leader())
}
