// Package preview serves a low-rate Motion JPEG view of the recording
// target so the web UI can show what will be captured.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"golang.org/x/image/draw"
)

const (
	DefaultFPS      = 5
	DefaultMaxWidth = 960
	jpegQuality     = 80
)

// FrameFunc returns the current picture of the target
type FrameFunc func(ctx context.Context) (image.Image, error)

// Option customises a Stream
type Option func(*Stream)

// WithFPS sets the capture rate
func WithFPS(fps int) Option {
	return func(s *Stream) {
		if fps > 0 {
			s.fps = fps
		}
	}
}

// WithMaxWidth sets the width frames are scaled down to
func WithMaxWidth(width int) Option {
	return func(s *Stream) {
		if width > 0 {
			s.maxWidth = width
		}
	}
}

// WithBadge draws the text returned by badge onto every frame. An empty
// string draws nothing.
func WithBadge(badge func() string) Option {
	return func(s *Stream) { s.badge = badge }
}

// Stream grabs frames only while at least one client is connected and
// broadcasts them as multipart JPEG.
type Stream struct {
	frames   FrameFunc
	badge    func() string
	fps      int
	maxWidth int

	clientsMu sync.Mutex
	clients   map[chan []byte]struct{}
	cancel    context.CancelFunc
	done      chan struct{}

	frameCount uint64
}

// NewStream creates a stream over frames
func NewStream(frames FrameFunc, opts ...Option) *Stream {
	s := &Stream{
		frames:   frames,
		fps:      DefaultFPS,
		maxWidth: DefaultMaxWidth,
		clients:  make(map[chan []byte]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// subscribe registers a client, starting the grab loop for the first one
func (s *Stream) subscribe() chan []byte {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	ch := make(chan []byte, 2) // Buffer 2 frames
	s.clients[ch] = struct{}{}

	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(ctx, s.done)
	}
	return ch
}

// unsubscribe removes a client, stopping the grab loop after the last one
func (s *Stream) unsubscribe(ch chan []byte) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, ok := s.clients[ch]; !ok {
		return
	}
	delete(s.clients, ch)
	close(ch)

	if len(s.clients) == 0 && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Clients returns the number of connected clients
func (s *Stream) Clients() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Stream) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	log := logger.WithComponent("preview")
	log.Debug().Int("fps", s.fps).Msg("Preview started")

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Uint64("frames", s.frameCount).Msg("Preview stopped")
			return
		case <-ticker.C:
			img, err := s.frames(ctx)
			if err != nil {
				log.Trace().Err(err).Msg("No preview frame")
				continue
			}
			if err := s.WriteFrame(img); err != nil {
				log.Debug().Err(err).Msg("Failed to write preview frame")
			}
		}
	}
}

// WriteFrame scales img, draws the badge and sends it to every client.
// Slow clients miss frames.
func (s *Stream) WriteFrame(img image.Image) error {
	frame := s.scale(img)
	if s.badge != nil {
		if text := s.badge(); text != "" {
			DrawBadge(frame, text)
		}
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.frameCount++
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			// Client is slow, skip this frame
		}
	}
	return nil
}

// scale fits img into maxWidth, keeping the aspect ratio. The result is
// always a fresh RGBA image the badge can be drawn on.
func (s *Stream) scale(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > s.maxWidth {
		h = h * s.maxWidth / w
		w = s.maxWidth
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}
	return dst
}

// ServeHTTP streams frames until the client disconnects or the stream is
// closed.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("preview")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	ch := s.subscribe()
	defer s.unsubscribe(ch)
	log.Info().Int("clients", s.Clients()).Msg("Preview client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("Preview client disconnected")
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// Close disconnects every client and waits for the grab loop to exit
func (s *Stream) Close() {
	s.clientsMu.Lock()
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan []byte]struct{})
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.clientsMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
