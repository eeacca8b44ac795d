// Package server implements the TCP listener and the line/JSON request
// protocol external clients use to read the cache, manage subscriptions,
// and inspect or update configuration. Each connection reads one line,
// sniffs whether it looks like JSON, and dispatches accordingly on its own
// goroutine.
package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/scada-gateway/internal/cache"
	"github.com/tamzrod/scada-gateway/internal/config"
	"github.com/tamzrod/scada-gateway/internal/gatewayerr"
	"github.com/tamzrod/scada-gateway/internal/gatewaylog"
	"github.com/tamzrod/scada-gateway/internal/hub"
)

// Server is the TCP listener that serves the line-command and JSON
// request APIs.
type Server struct {
	addr  string
	cache *cache.Cache
	hub   *hub.Hub
	ctrl  *config.Controller
	log   *gatewaylog.Logger

	startedAt time.Time

	mu sync.Mutex
	ln net.Listener
}

// New constructs a Server bound to addr (e.g. ":8080"), not yet listening.
func New(addr string, c *cache.Cache, h *hub.Hub, ctrl *config.Controller, log *gatewaylog.Logger) *Server {
	return &Server{addr: addr, cache: c, hub: h, ctrl: ctrl, log: log}
}

// ListenAndServe binds the listening socket and accepts connections until
// Close is called, at which point it returns nil. Each connection is
// handled on its own goroutine so one slow or malicious client can never
// block the acceptor.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.startedAt = time.Now()
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closedSignal():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// closedSignal returns an already-closed channel once Close has run, so
// Accept's error after a deliberate listener close is distinguished from a
// real fault. A fresh closed channel is fine here: it's only ever consulted
// after Close, and Close itself guarantees ln is nil by the time it's read.
func (s *Server) closedSignal() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	if s.ln == nil {
		close(ch)
	}
	return ch
}

// Addr returns the bound listener's address, or nil if not yet listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting new connections. In-flight connections are left to
// finish on their own.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		_ = conn.Close()
		return
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		_ = conn.Close()
		return
	}

	if strings.HasPrefix(strings.TrimSpace(line), "{") {
		s.handleJSON(conn, line)
		return
	}
	if err := s.handleLineCommand(conn, line); err != nil {
		s.warnf("client request rejected: %v", err)
	}
}

func (s *Server) warnf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Warningf(format, args...)
	}
}

func writeLine(conn net.Conn, b []byte) {
	b = append(b, '\n')
	_, _ = conn.Write(b)
}

func writeJSON(conn net.Conn, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	writeLine(conn, b)
}

type errorReply struct {
	Error string `json:"error"`
}

// writeError writes err's client-facing message as a one-line JSON error
// reply. A *gatewayerr.ClientRequestError's Reason is sent verbatim; any
// other error falls back to err.Error().
func writeError(conn net.Conn, err error) {
	var ce *gatewayerr.ClientRequestError
	if errors.As(err, &ce) {
		writeJSON(conn, errorReply{Error: ce.Reason})
		return
	}
	writeJSON(conn, errorReply{Error: err.Error()})
}

// parseID parses a decimal variable id, returning a *gatewayerr.ClientRequestError
// with the wire-mandated "Invalid variable ID format" reason on failure.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &gatewayerr.ClientRequestError{Reason: "Invalid variable ID format"}
	}
	return id, nil
}
