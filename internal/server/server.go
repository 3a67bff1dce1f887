package server

import (
	"bufio"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/panjf2000/ants/v2"

	"github.com/keldb/keldb/internal/engine"
	"github.com/keldb/keldb/internal/manager"
	"github.com/keldb/keldb/pkg"
)

const defaultMaxConnections = 64

// Server accepts clients on a unix-domain socket and feeds each query
// line through the engine. Connection handlers run on a bounded worker
// pool.
type Server struct {
	engine  *engine.Engine
	manager *manager.Manager

	socketPath string
	wsPort     int

	listener   net.Listener
	connPool   *ants.Pool
	httpServer *http.Server

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	connMu      sync.Mutex
	connections map[net.Conn]bool
}

func New(e *engine.Engine, m *manager.Manager, socketPath string, wsPort int) *Server {
	return &Server{
		engine:      e,
		manager:     m,
		socketPath:  socketPath,
		wsPort:      wsPort,
		connections: make(map[net.Conn]bool),
	}
}

// Listen serves until SIGINT or SIGTERM, then saves the database and
// shuts down. A second signal exits immediately without saving.
func (s *Server) Listen() error {
	exit := make(chan os.Signal, 2)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(); err != nil {
		return err
	}

	<-exit
	go func() {
		<-exit
		pkg.ErrorLog("received second signal, exiting without saving")
		os.Exit(1)
	}()

	pkg.DebugLog("shutting down...")
	s.Stop()

	if err := s.manager.Close(); err != nil {
		pkg.ErrorLog("failed to save database on shutdown;", err)
		return err
	}
	return nil
}

// Start begins accepting connections without blocking.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		pkg.WarnLog("failed to remove old socket;", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener

	pool, err := ants.NewPool(defaultMaxConnections, ants.WithPanicHandler(func(v any) {
		pkg.ErrorLog("connection handler panic:", v)
	}))
	if err != nil {
		listener.Close()
		return err
	}
	s.connPool = pool

	s.running = true
	s.wg.Add(1)
	go s.acceptLoop()

	if s.wsPort > 0 {
		if err := s.startWebsocket(); err != nil {
			return err
		}
	}

	pkg.InfoLog("keldb listening on", s.socketPath)
	return nil
}

// Stop closes the listener and waits for in-flight handlers.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.listener.Close()
	s.mu.Unlock()

	// unblock handlers waiting on idle clients
	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	s.connPool.Release()
	s.stopWebsocket()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			pkg.ErrorLog("accept error;", err)
			continue
		}

		s.connMu.Lock()
		s.connections[conn] = true
		s.connMu.Unlock()

		s.wg.Add(1)
		if err := s.connPool.Submit(func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}); err != nil {
			s.wg.Done()
			s.dropConnection(conn)
			pkg.ErrorLog("failed to submit connection handler;", err)
		}
	}
}

// dropConnection closes the connection and forgets it.
func (s *Server) dropConnection(conn net.Conn) {
	conn.Close()
	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()
}

// handleConnection reads one query per line and writes one response per
// query. Responses end with a newline; a serialized table keeps its
// internal row terminators and the final one closes the response.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.dropConnection(conn)
	pkg.InfoLog("new connection")
	defer pkg.InfoLog("connection closed")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		query := scanner.Text()
		if strings.TrimSpace(query) == "" {
			continue
		}

		response := s.engine.ProcessQuery(query)
		if !strings.HasSuffix(response, "\n") {
			response += "\n"
		}

		if _, err := writer.WriteString(response); err != nil {
			pkg.ErrorLog("writing response;", err)
			return
		}
		if err := writer.Flush(); err != nil {
			pkg.ErrorLog("flushing response;", err)
			return
		}
	}

	if err := scanner.Err(); err != nil {
		pkg.DebugLog("conn read error;", err)
	}
}
