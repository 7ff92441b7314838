package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bryanchriswhite/ScreenRecorder/internal/clip"
	"github.com/bryanchriswhite/ScreenRecorder/internal/config"
	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/recording"
)

// maxVideoBytes caps a single uploaded recording
const maxVideoBytes = 4 << 30

type pathRequest struct {
	Path string `json:"path"`
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.Sources(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, sources)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.settings.Get())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u config.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	settings, err := s.settings.Save(u)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleSetDirectory(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dir, err := s.settings.SetSaveDirectory(req.Path)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]string{"saveDirectory": dir})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.settings.Videos()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, videos)
}

// handleSaveVideo stores the raw request body as ?name= in the save directory
func (s *Server) handleSaveVideo(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxVideoBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	path, err := s.settings.SaveVideo(r.URL.Query().Get("name"), data)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, pathRequest{Path: path})
}

func (s *Server) handleDuration(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]float64{"duration": s.clipper.Duration(r.Context(), path)})
}

func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	var req clip.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := s.clipper.Clip(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, pathRequest{Path: out})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.shell.Reveal(r.Context(), req.Path); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.shell.Open(r.Context(), req.Path); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "success"})
}

type selectorState struct {
	Open   bool         `json:"open"`
	Bounds display.Rect `json:"bounds"`
}

func (s *Server) handleSelectorState(w http.ResponseWriter, r *http.Request) {
	bounds, open := s.windows.SelectorOpen()
	writeJSON(w, selectorState{Open: open, Bounds: bounds})
}

// handleSelectorOpen opens the overlay; ?display= names the display the
// request came from. Pickers are disabled while capturing.
func (s *Server) handleSelectorOpen(w http.ResponseWriter, r *http.Request) {
	if state := s.session.State(); state != recording.StateIdle {
		fail(w, fmt.Errorf("%w: cannot select an area while %s", recording.ErrBusy, state))
		return
	}

	bounds, err := s.windows.OpenAreaSelector(r.Context(), r.URL.Query().Get("display"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, selectorState{Open: true, Bounds: bounds})
}

func (s *Server) handleSelectorSelect(w http.ResponseWriter, r *http.Request) {
	var rect display.Rect
	if err := json.NewDecoder(r.Body).Decode(&rect); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	delivered, err := s.windows.SubmitSelection(rect)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]bool{"delivered": delivered})
}

func (s *Server) handleSelectorCancel(w http.ResponseWriter, r *http.Request) {
	s.windows.CancelSelection()
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleMinimize(w http.ResponseWriter, r *http.Request) {
	if err := s.windows.Minimize(); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "minimized"})
}

// handleClose destroys the control window. The response is written before
// OnClose runs.
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.windows.Close(); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "closed"})
	if s.onClose != nil {
		go s.onClose()
	}
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Height int `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h, err := s.windows.Resize(req.Height)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]int{"height": h})
}

func (s *Server) handlePrimaryDisplay(w http.ResponseWriter, r *http.Request) {
	width, height, err := s.windows.PrimaryDisplaySize()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, map[string]int{"width": width, "height": height})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.session.Status())
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var t recording.Target
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.session.Configure(t); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, s.session.Status())
}

// handleStart detaches from the request context; the stream outlives the call.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(context.WithoutCancel(r.Context())); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, s.session.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Pause(); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, s.session.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Resume(); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, s.session.Status())
}

type savedResponse struct {
	Path   string           `json:"path"`
	Status recording.Status `json:"status"`
}

// handleStop and handleRetry finish even if the client goes away, so the
// encoder is never killed before the file is complete.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	path, err := s.session.Stop(context.WithoutCancel(r.Context()))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, savedResponse{Path: path, Status: s.session.Status()})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	path, err := s.session.RetrySave(context.WithoutCancel(r.Context()))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, savedResponse{Path: path, Status: s.session.Status()})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Discard(); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, s.session.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
