package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so one top-level policy can decide
// its fate: transport failures reconnect, decode and store failures drop
// the current record and continue. Nothing here is ever fatal.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindDecode
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindStore:
		return "store"
	}
	return "unknown"
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StoreError wraps a state-store failure.
func StoreError(err error) error {
	return &Error{Kind: KindStore, Err: err}
}

// DecodeError wraps a record-interpretation failure.
func DecodeError(err error) error {
	return &Error{Kind: KindDecode, Err: err}
}

// TransportError wraps a connection-level failure.
func TransportError(err error) error {
	return &Error{Kind: KindTransport, Err: err}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
