// Package api exposes the recorder's control surface over HTTP and
// streams session status over a websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/capture"
	"github.com/bryanchriswhite/ScreenRecorder/internal/clip"
	"github.com/bryanchriswhite/ScreenRecorder/internal/config"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
	"github.com/bryanchriswhite/ScreenRecorder/internal/shell"
	"github.com/bryanchriswhite/ScreenRecorder/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// Deps are the components the server drives
type Deps struct {
	Settings *config.Manager
	Sources  capture.Lister
	Session  *recording.Session
	Windows  *window.Coordinator
	Clipper  *clip.Clipper
	Shell    *shell.Opener
	// Preview serves the live MJPEG view; optional
	Preview http.Handler
	// OnClose runs after the control window is closed through the API
	OnClose func()
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	settings *config.Manager
	sources  capture.Lister
	session  *recording.Session
	windows  *window.Coordinator
	clipper  *clip.Clipper
	shell    *shell.Opener
	preview  http.Handler
	onClose  func()
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer creates a new API server. Area selections made in the overlay
// are applied to the session as its next target.
func NewServer(d Deps) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		settings: d.Settings,
		sources:  d.Sources,
		session:  d.Session,
		windows:  d.Windows,
		clipper:  d.Clipper,
		shell:    d.Shell,
		preview:  d.Preview,
		onClose:  d.OnClose,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the page is served from the same local process
			},
		},
	}

	s.setupRoutes()
	go s.applySelections(s.windows.Subscribe())
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Sources and settings
	api.HandleFunc("/sources", s.handleGetSources).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")
	api.HandleFunc("/settings/directory", s.handleSetDirectory).Methods("POST")

	// Saved videos
	api.HandleFunc("/videos", s.handleListVideos).Methods("GET")
	api.HandleFunc("/videos", s.handleSaveVideo).Methods("POST")
	api.HandleFunc("/videos/duration", s.handleDuration).Methods("GET")
	api.HandleFunc("/clips", s.handleClip).Methods("POST")
	api.HandleFunc("/files/reveal", s.handleReveal).Methods("POST")
	api.HandleFunc("/files/open", s.handleOpen).Methods("POST")

	// Area selector
	api.HandleFunc("/selector", s.handleSelectorState).Methods("GET")
	api.HandleFunc("/selector/open", s.handleSelectorOpen).Methods("POST")
	api.HandleFunc("/selector/select", s.handleSelectorSelect).Methods("POST")
	api.HandleFunc("/selector/cancel", s.handleSelectorCancel).Methods("POST")

	// Control window
	api.HandleFunc("/window/minimize", s.handleMinimize).Methods("POST")
	api.HandleFunc("/window/close", s.handleClose).Methods("POST")
	api.HandleFunc("/window/height", s.handleResize).Methods("PUT")
	api.HandleFunc("/display/primary", s.handlePrimaryDisplay).Methods("GET")

	// Recording
	api.HandleFunc("/recording/status", s.handleRecordingStatus).Methods("GET")
	api.HandleFunc("/recording/configure", s.handleConfigure).Methods("POST")
	api.HandleFunc("/recording/start", s.handleStart).Methods("POST")
	api.HandleFunc("/recording/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/recording/resume", s.handleResume).Methods("POST")
	api.HandleFunc("/recording/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/recording/retry", s.handleRetry).Methods("POST")
	api.HandleFunc("/recording/discard", s.handleDiscard).Methods("POST")
	api.HandleFunc("/recording/stream", s.handleRecordingStream)
	api.HandleFunc("/selector/stream", s.handleSelectorStream)
	if s.preview != nil {
		api.Handle("/recording/preview", s.preview).Methods("GET")
	}

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start starts the HTTP server and blocks until it stops. A server stopped
// by Shutdown returns nil.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithComponent("api").Info().Str("addr", "http://localhost"+addr).Msg("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers to responses
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// applySelections configures the session with each area chosen in the
// overlay. It returns when the coordinator closes.
func (s *Server) applySelections(events chan window.Event) {
	log := logger.WithComponent("api")
	for ev := range events {
		if ev.Kind != window.EventSelected || ev.Selection == nil {
			continue
		}
		area := *ev.Selection
		if err := s.session.Configure(recording.Target{Area: &area}); err != nil {
			log.Warn().Err(err).Str("selection", area.String()).Msg("Selection not applied")
		}
	}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalidSetting),
		errors.Is(err, config.ErrInvalidFileName),
		errors.Is(err, display.ErrInvalidSelection),
		errors.Is(err, recording.ErrInvalidTarget),
		errors.Is(err, recording.ErrNothingSelected),
		errors.Is(err, clip.ErrInvalidTimestamp),
		errors.Is(err, clip.ErrInvalidRange),
		errors.Is(err, clip.ErrNoInput):
		return http.StatusBadRequest
	case errors.Is(err, shell.ErrNotFound),
		errors.Is(err, capture.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, recording.ErrBusy),
		errors.Is(err, recording.ErrNotRecording),
		errors.Is(err, recording.ErrUnsaved),
		errors.Is(err, recording.ErrNoData),
		errors.Is(err, recording.ErrClosed),
		errors.Is(err, window.ErrClosed):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err with the status it maps to
func fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.WithComponent("api").Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), code)
}
