package realtime

import (
	"encoding/json"
	"time"
)

// dispatch classifies one inbound frame and routes it to the request table
// or the binding table. Malformed frames are logged and dropped; the
// dispatcher never fails the connection.
func (s *Session) dispatch(data []byte) {
	// Any inbound traffic proves the connection healthy.
	s.clearHealthCheck()

	if string(data) == pongFrame {
		return // keep-alive acknowledgement
	}

	var frame responseFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn("invalid frame dropped", "session", s.id, "error", err, "frame", string(data))
		return
	}

	switch frame.Type {
	case frameNotify:
		s.handleNotify(frame)
	case frameSuccess:
		var value any
		if len(frame.Value) > 0 {
			if err := json.Unmarshal(frame.Value, &value); err != nil {
				s.logger.Warn("unparseable success value", "session", s.id, "id", frame.ID, "error", err)
			}
		}
		if !s.requests.resolveID(frame.ID, value) {
			s.logger.Debug("success frame without pending request", "session", s.id, "id", frame.ID)
		}
	case frameError:
		rerr := &Error{Code: errorCode(frame.Code), Message: frame.Msg, ID: frame.ID}
		if !s.requests.rejectID(frame.ID, rerr) {
			s.logger.Debug("error frame without pending request",
				"session", s.id, "id", frame.ID, "code", rerr.Code.String())
		}
	case frameDebug:
		s.debug.publish(DebugEvent{
			Module:  frame.Mod,
			Class:   frame.Klass,
			Message: frame.Msg,
			Level:   frame.Level,
			Time:    time.Now().Unix(),
		})
	default:
		if frame.Cmd != "" {
			return // echo of an outbound command frame
		}
		s.logger.Warn("unrecognized frame dropped", "session", s.id, "frame", string(data))
	}
}

// handleNotify decodes a notify frame and publishes the value to the
// binding's listeners. The wire value is a JSON-encoded string; if its
// contents fail to parse, the raw string passes through rather than
// failing the update.
func (s *Session) handleNotify(frame responseFrame) {
	if frame.Meta == nil {
		s.logger.Warn("notify frame without meta dropped", "session", s.id)
		return
	}

	var value any
	var encoded string
	if err := json.Unmarshal(frame.Value, &encoded); err != nil {
		// Value was not string-wrapped; take it as-is.
		if err := json.Unmarshal(frame.Value, &value); err != nil {
			s.logger.Warn("unparseable notify value, passing raw through",
				"session", s.id, "binding", frame.Meta.String(), "error", err)
			value = string(frame.Value)
		}
	} else if err := json.Unmarshal([]byte(encoded), &value); err != nil {
		s.logger.Warn("unparseable notify value, passing raw through",
			"session", s.id, "binding", frame.Meta.String(), "error", err)
		value = encoded
	}

	s.bindings.notify(*frame.Meta, value)
}
