package server

import (
	"encoding/json"
	"net"

	"github.com/tamzrod/scada-gateway/internal/config"
)

// jsonRequest is the union of every field any action needs. Unused fields
// for a given action are simply absent in the payload.
type jsonRequest struct {
	Action     string          `json:"action"`
	VariableID int64           `json:"variable_id"`
	Count      int             `json:"count"`
	Filename   string          `json:"filename"`
	Config     config.Document `json:"config"`
}

// handleJSON dispatches one JSON request. Parse errors or unknown actions
// reply with an empty JSON object rather than closing uncleanly.
func (s *Server) handleJSON(conn net.Conn, line string) {
	var req jsonRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		writeJSON(conn, struct{}{})
		_ = conn.Close()
		return
	}

	switch req.Action {
	case "get_all":
		writeJSON(conn, snapshot(s.cache))

	case "get_history":
		n := req.Count
		if n <= 0 {
			n = defaultHistoryCount
		}
		writeJSON(conn, history(s.cache, req.VariableID, n))

	case "get_config":
		writeJSON(conn, s.ctrl.Document())

	case "save_config":
		if err := s.ctrl.Save(req.Filename); err != nil {
			s.warnf("save_config failed: %v", err)
			writeJSON(conn, statusReply{Status: "error", Message: configErrMessage(err)})
			break
		}
		writeJSON(conn, statusReply{Status: "success", Message: "Configuration saved"})

	case "update_config":
		if len(req.Config) == 0 {
			writeJSON(conn, statusReply{Status: "error", Message: "missing or empty \"config\""})
			break
		}
		if err := s.ctrl.ApplyUpdate(req.Config); err != nil {
			s.warnf("update_config failed: %v", err)
			writeJSON(conn, statusReply{Status: "error", Message: configErrMessage(err)})
			break
		}
		writeJSON(conn, statusReply{Status: "success", Message: "Configuration updated"})

	case "get_id_map":
		writeJSON(conn, s.cache.IDMap())

	default:
		writeJSON(conn, struct{}{})
	}

	_ = conn.Close()
}
