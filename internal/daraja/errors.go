package daraja

import (
	"errors"
	"fmt"
)

// Kind separates the three outbound failure modes the orchestrator logs
// distinctly: credential/token problems, transport problems, and
// requests the gateway refused outright.
type Kind string

const (
	KindAuth     Kind = "auth"
	KindNetwork  Kind = "network"
	KindRejected Kind = "rejected"
)

type Error struct {
	Kind Kind
	Op   string // "token" | "stkpush"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("daraja %s: %s failure", e.Op, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, or "" for non-gateway errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}
