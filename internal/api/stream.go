package api

import (
	"net/http"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/gorilla/websocket"
)

// watchClose reads until the peer goes away and then closes done. Control
// frames are handled by the read loop.
func watchClose(conn *websocket.Conn) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}

func (s *Server) handleRecordingStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Subscribe to status changes
	updates := s.session.Subscribe()
	defer s.session.Unsubscribe(updates)
	done := watchClose(conn)

	// Send initial status
	if err := conn.WriteJSON(s.session.Status()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write error")
		return
	}

	for {
		select {
		case <-done:
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleSelectorStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	events := s.windows.Subscribe()
	defer s.windows.Unsubscribe(events)
	done := watchClose(conn)

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>ScreenRecorder</title>
    <style>
        body { font-family: sans-serif; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #e06c75; }
        code { background: #2d2d2d; padding: 2px 6px; border-radius: 3px; }
        #status { font-size: 2em; margin: 20px 0; }
    </style>
</head>
<body>
    <h1>ScreenRecorder</h1>
    <div id="status">connecting...</div>
    <button onclick="post('/api/recording/start')">Start</button>
    <button onclick="post('/api/recording/pause')">Pause</button>
    <button onclick="post('/api/recording/resume')">Resume</button>
    <button onclick="post('/api/recording/stop')">Stop</button>
    <button onclick="post('/api/selector/open')">Select area</button>
    <h2>API</h2>
    <ul>
        <li><code>GET /api/sources</code></li>
        <li><code>GET|PUT /api/settings</code></li>
        <li><code>POST /api/recording/{configure,start,pause,resume,stop,retry,discard}</code></li>
        <li><code>POST /api/clips</code></li>
        <li><code>WS /api/recording/stream</code></li>
    </ul>
    <script>
        function post(path) {
            fetch(path, {method: 'POST'}).then(r => r.ok ? null : r.text().then(alert));
        }
        const ws = new WebSocket('ws://' + location.host + '/api/recording/stream');
        ws.onmessage = (e) => {
            const s = JSON.parse(e.data);
            document.getElementById('status').textContent = s.elapsed_text + '  ' + s.status;
        };
    </script>
</body>
</html>
`
