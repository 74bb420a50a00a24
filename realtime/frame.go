package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Command is a verb accepted by the control socket.
type Command string

// Command verbs.
const (
	CommandBind   Command = "bind"
	CommandUnbind Command = "unbind"
	CommandExec   Command = "exec"
	CommandDebug  Command = "debug"
	CommandIgnore Command = "ignore"
)

// Inbound frame types.
const (
	frameNotify  = "notify"
	frameSuccess = "success"
	frameError   = "error"
	frameDebug   = "debug"
)

// Keep-alive literals exchanged outside the JSON frame contract.
const (
	pingFrame = "ping"
	pongFrame = "pong"
)

// Identity addresses one status variable on one module instance within a
// system. It doubles as the notify frame's meta payload.
type Identity struct {
	System string `json:"sys"`
	Module string `json:"mod"`
	Index  int    `json:"index"`
	Name   string `json:"name"`
}

// String renders the identity in sys|mod_index|name form for logs.
func (id Identity) String() string {
	return id.System + "|" + id.Module + "_" + strconv.Itoa(id.Index) + "|" + id.Name
}

// bindingKey is the canonical registry key for the identity. It is stable
// for the lifetime of the process.
func (id Identity) bindingKey() string {
	return id.String()
}

// dedupKey collapses identical concurrent commands into one in-flight
// request: command|system|module_index|variable.
func dedupKey(cmd Command, id Identity) string {
	return string(cmd) + "|" + id.bindingKey()
}

// commandFrame is the outbound wire frame for every verb.
type commandFrame struct {
	ID    int64   `json:"id"`
	Cmd   Command `json:"cmd"`
	Sys   string  `json:"sys"`
	Mod   string  `json:"mod"`
	Index int     `json:"index"`
	Name  string  `json:"name"`
	Args  []any   `json:"args,omitempty"`
}

// identity reassembles the binding identity addressed by the frame.
func (f commandFrame) identity() Identity {
	return Identity{System: f.Sys, Module: f.Mod, Index: f.Index, Name: f.Name}
}

// responseFrame is the superset of all inbound frame shapes; Type selects
// which fields are meaningful.
type responseFrame struct {
	Type  string          `json:"type"`
	ID    int64           `json:"id"`
	Value json.RawMessage `json:"value"`
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Meta  *Identity       `json:"meta"`
	Mod   string          `json:"mod"`
	Klass string          `json:"klass"`
	Level string          `json:"level"`

	// Cmd is set only on echoes of outbound command frames; such frames are
	// ignored rather than logged as invalid.
	Cmd string `json:"cmd"`
}

// DebugEvent is a log line pushed by a remote module driver. Events are
// published on the session's debug stream and are not retained.
type DebugEvent struct {
	Module  string `json:"mod"`   // module id
	Class   string `json:"klass"` // module class + index label
	Message string `json:"msg"`
	Level   string `json:"level"`
	Time    int64  `json:"time"` // unix seconds
}

// encodeCommand serializes an outbound command frame.
func encodeCommand(f commandFrame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", f.Cmd, err)
	}
	return data, nil
}
