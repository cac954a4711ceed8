package rpc

import (
	"encoding/json"
	"strings"
)

// Envelope is one inbound message. ID > 0 means the client waits for an ack.
type Envelope struct {
	ID   uint64            `json:"id,omitempty"`
	Name string            `json:"name"`
	Args []json.RawMessage `json:"args,omitempty"`
}

func (e *Envelope) HasAck() bool { return e.ID > 0 }

func (e *Envelope) Empty() bool { return e.Name == "" && len(e.Args) == 0 }

// Params is the first argument or nil.
func (e *Envelope) Params() json.RawMessage {
	if len(e.Args) == 0 {
		return nil
	}
	return e.Args[0]
}

// Namespace is the first segment of the event name.
func (e *Envelope) Namespace() string {
	ns, _, _ := strings.Cut(e.Name, ".")
	return ns
}
