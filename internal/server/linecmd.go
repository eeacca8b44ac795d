package server

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tamzrod/scada-gateway/internal/gatewayerr"
)

const defaultHistoryCount = 10

var errUnknownCommand = &gatewayerr.ClientRequestError{Reason: "Unknown command"}
var errInvalidVariableID = &gatewayerr.ClientRequestError{Reason: "Invalid variable ID format"}

// handleLineCommand dispatches one text command. Every command except
// SUBSCRIBE replies exactly once and closes the connection; SUBSCRIBE
// hands the connection to the hub, which owns its lifetime from then on.
// It returns the *gatewayerr.ClientRequestError written to the client, if
// any, so the caller can log it; it never propagates further.
func (s *Server) handleLineCommand(conn net.Conn, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		writeError(conn, errUnknownCommand)
		_ = conn.Close()
		return errUnknownCommand
	}

	cmd := strings.ToUpper(fields[0])
	args := fields[1:]

	switch cmd {
	case "GET_ALL":
		writeJSON(conn, snapshot(s.cache))
		_ = conn.Close()
		return nil

	case "GET_HISTORY":
		err := s.handleGetHistory(conn, args)
		_ = conn.Close()
		return err

	case "GET_CONFIG":
		writeJSON(conn, s.ctrl.Document())
		_ = conn.Close()
		return nil

	case "SAVE_CONFIG":
		s.handleSaveConfig(conn, args)
		_ = conn.Close()
		return nil

	case "SUBSCRIBE":
		// ownership of conn passes to the hub on success, or the hub closes
		// it itself on an unknown id — either way this function is done.
		return s.handleSubscribe(conn, args)

	case "PING":
		writeJSON(conn, pingReply{Status: "ok", UptimeS: int64(time.Since(s.startedAtSafe()).Seconds())})
		_ = conn.Close()
		return nil

	default:
		writeError(conn, errUnknownCommand)
		_ = conn.Close()
		return errUnknownCommand
	}
}

type pingReply struct {
	Status  string `json:"status"`
	UptimeS int64  `json:"uptime_s"`
}

func (s *Server) startedAtSafe() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return time.Now()
	}
	return s.startedAt
}

func (s *Server) handleGetHistory(conn net.Conn, args []string) error {
	if len(args) < 2 {
		writeError(conn, errInvalidVariableID)
		return errInvalidVariableID
	}
	id, err := parseID(args[0])
	if err != nil {
		writeError(conn, err)
		return err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(args[1]))
	if convErr != nil || n <= 0 {
		n = defaultHistoryCount
	}
	writeJSON(conn, history(s.cache, id, n))
	return nil
}

func (s *Server) handleSaveConfig(conn net.Conn, args []string) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	if err := s.ctrl.Save(path); err != nil {
		s.warnf("SAVE_CONFIG failed: %v", err)
		writeJSON(conn, statusReply{Status: "error", Message: configErrMessage(err)})
		return
	}
	writeJSON(conn, statusReply{Status: "success", Message: "Configuration saved"})
}

func (s *Server) handleSubscribe(conn net.Conn, args []string) error {
	if len(args) < 1 {
		writeError(conn, errInvalidVariableID)
		_ = conn.Close()
		return errInvalidVariableID
	}
	id, err := parseID(args[0])
	if err != nil {
		writeError(conn, err)
		_ = conn.Close()
		return err
	}
	s.hub.Subscribe(id, conn)
	return nil
}

type statusReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func configErrMessage(err error) string {
	var ce *gatewayerr.ConfigError
	if as, ok := err.(*gatewayerr.ConfigError); ok {
		ce = as
		return ce.Error()
	}
	return err.Error()
}
