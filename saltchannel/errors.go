package saltchannel

import "errors"

// Code classifies why a Session operation failed, per the taxonomy a caller
// needs to decide whether to retry, reconnect, or give up outright.
type Code int

const (
	// CodeTransportFatal means the caller's read/write callback reported a
	// fatal error; it is wrapped as the *Error's cause.
	CodeTransportFatal Code = iota + 1
	// CodeParseError means the wire bytes were malformed: a bad size, an
	// unknown type for the current state, or a length field that disagreed
	// with the outer framing.
	CodeParseError
	// CodeProtocolError means the bytes parsed fine but were not valid in
	// the session's current state (wrong message type, bad flag
	// combination).
	CodeProtocolError
	// CodeCryptoError means an AEAD open, a signature verification, or a
	// key-generation call failed.
	CodeCryptoError
	// CodeNoSuchServer means the host rejected a pinned peer key (client
	// side) or the host itself sent the rejection (host side, after
	// replying and before closing).
	CodeNoSuchServer
	// CodeSessionClosed means the peer has set LastFlag and no further I/O
	// is permitted.
	CodeSessionClosed
	// CodeTimeViolation means a received timestamp regressed further than
	// the configured threshold allows.
	CodeTimeViolation
	// CodeConfigError means Init was called with an invalid Config (buffer
	// too small, AppMax non-positive, and so on).
	CodeConfigError
)

func (c Code) String() string {
	switch c {
	case CodeTransportFatal:
		return "transport fatal"
	case CodeParseError:
		return "parse error"
	case CodeProtocolError:
		return "protocol error"
	case CodeCryptoError:
		return "crypto error"
	case CodeNoSuchServer:
		return "no such server"
	case CodeSessionClosed:
		return "session closed"
	case CodeTimeViolation:
		return "time violation"
	case CodeConfigError:
		return "config error"
	default:
		return "unknown error"
	}
}

// Error is the engine's error type. It always carries a classifiable Code;
// Cause, when non-nil, is the lower-level error that triggered it (a
// transport callback error, typically).
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Code.String() + ": " + e.Msg + ": " + e.Cause.Error()
	}
	return e.Code.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrSessionClosed) and friends work against bare
// Code sentinels without a caller needing to know about *Error.
func (e *Error) Is(target error) bool {
	if c, ok := target.(*Error); ok {
		return e.Code == c.Code
	}
	return false
}

func newError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// ErrPending is returned by any operation that would block on the
// caller-supplied transport. It is not a failure: the session's state is
// unchanged and the caller should invoke the same operation again once the
// transport is ready.
var ErrPending = errors.New("saltchannel: transport pending")

// Sentinels for errors.Is comparisons against specific failure kinds. Each
// wraps a representative *Error of the matching Code; the Msg/Cause on the
// sentinel itself are never populated, since *Error.Is only compares Code.
var (
	ErrParse         = &Error{Code: CodeParseError}
	ErrProtocol      = &Error{Code: CodeProtocolError}
	ErrCrypto        = &Error{Code: CodeCryptoError}
	ErrNoSuchServer  = &Error{Code: CodeNoSuchServer}
	ErrSessionClosed = &Error{Code: CodeSessionClosed}
	ErrTimeViolation = &Error{Code: CodeTimeViolation}
	ErrConfig        = &Error{Code: CodeConfigError}
)
