package bus

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Logical operation names carried on the wire.
const (
	OpRegisterProbe   = "register_probe"
	OpProbeScan       = "probe_scan"
	OpScanResult      = "scan_result"
	OpScanResultError = "scan_result_error"
	OpScanLaunch      = "scan_launch"
	OpScanCancel      = "scan_cancel"
	OpScanProgress    = "scan_progress"
	OpProbeList       = "probe_list"
)

// Reserved control queues; probe discovery must never treat these as probes.
const (
	QueueControl  = "scan.control"
	QueueRegister = "probe.register"
	QueueResults  = "scan.result"
)

// ReplyPrefix prefixes the ephemeral queues synchronous requests listen on.
const ReplyPrefix = "reply."

// Reserved reports whether a queue name is internal to the orchestration.
func Reserved(queue string) bool {
	switch queue {
	case QueueControl, QueueRegister, QueueResults:
		return true
	}
	return strings.HasPrefix(queue, ReplyPrefix)
}

// Message is the wire unit: an operation name plus positional arguments.
// Arguments survive a JSON round trip, so handlers decode them by position.
type Message struct {
	Op      string            `json:"op"`
	Args    []json.RawMessage `json:"args"`
	ReplyTo string            `json:"reply_to,omitempty"`
}

// New builds a message, marshalling each positional argument.
func New(op string, args ...any) (Message, error) {
	m := Message{Op: op, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s arg %d: %w", op, i, err)
		}
		m.Args = append(m.Args, raw)
	}
	return m, nil
}

// Arg decodes the i-th positional argument into out.
func (m Message) Arg(i int, out any) error {
	if i < 0 || i >= len(m.Args) {
		return fmt.Errorf("%s: missing argument %d", m.Op, i)
	}
	if err := json.Unmarshal(m.Args[i], out); err != nil {
		return fmt.Errorf("%s: bad argument %d: %w", m.Op, i, err)
	}
	return nil
}

// StringArg decodes the i-th argument as a string.
func (m Message) StringArg(i int) (string, error) {
	var s string
	err := m.Arg(i, &s)
	return s, err
}
