package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/keldb/keldb/pkg"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 10,
	WriteBufferSize: 1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// startWebsocket exposes the same one-query-per-message contract over a
// WebSocket endpoint for clients that can't reach the unix socket.
func (s *Server) startWebsocket() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/", s.handleWebsocket)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.wsPort),
		Handler: mux,
	}

	go func() {
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			pkg.FatalLog(err)
		}
	}()

	pkg.InfoLog("websocket transport listening on port", s.wsPort)
	return nil
}

func (s *Server) stopWebsocket() {
	if s.httpServer == nil {
		return
	}
	s.httpServer.Shutdown(context.Background())
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		pkg.ErrorLog(err)
		return
	}
	defer conn.Close()
	pkg.InfoLog("new websocket connection")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				pkg.ErrorLog("unexpected close;", err)
			} else {
				pkg.DebugLog("websocket connection closed;", err)
			}
			return
		}

		response := s.engine.ProcessQuery(string(message))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(response)); err != nil {
			pkg.ErrorLog("writing websocket response;", err)
			return
		}
	}
}
