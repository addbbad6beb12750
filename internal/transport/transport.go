// Package transport defines the Transport Driver Interface the Send
// Worker drives (spec.md §4.3): a seven-step abstract contract every
// concrete protocol implements, with a per-call transfer_timeout
// enforced by the driver rather than the worker.
package transport

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
)

// Outcome classifies the result of a driver call into the same
// vocabulary the Send Worker's exit-code table uses (spec.md §4.4).
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeConnectError
	OutcomeAuthError
	OutcomeProtocolError
	OutcomeOpenRemoteError
	OutcomeWriteRemoteError
	OutcomeCloseRemoteError
	OutcomeTimeout
	OutcomeWarn
)

// Error wraps a driver failure with the Outcome the worker's state
// machine switches on.
type Error struct {
	Outcome Outcome
	Err     error
}

func (e *Error) Error() string { return e.Outcome.String() + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeConnectError:
		return "connect_error"
	case OutcomeAuthError:
		return "auth_error"
	case OutcomeProtocolError:
		return "protocol_error"
	case OutcomeOpenRemoteError:
		return "open_remote_error"
	case OutcomeWriteRemoteError:
		return "write_remote_error"
	case OutcomeCloseRemoteError:
		return "close_remote_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeWarn:
		return "warn"
	default:
		return "unknown"
	}
}

// ErrTimedOut is wrapped by an *Error with Outcome=OutcomeTimeout
// whenever a call exceeds Config.TransferTimeout.
var ErrTimedOut = errors.New("transport: call exceeded transfer_timeout")

// Credentials carries the connection's auth material. Password may be
// a composite string of the form "<i>identity_path</i><p>password</p>"
// in either order, or a bare password — ParseCredentials below splits
// it per spec.md §4.4's AUTHENTICATING state.
type Credentials struct {
	User     string
	Password string
}

// Config configures a Driver's connect/session parameters.
type Config struct {
	Host            string
	Port            int
	Directory       string
	LockPolicy      string
	TransferMode    string
	TransferTimeout time.Duration
}

// Handle identifies an open remote file across OpenFile/WriteChunk/
// CloseFile calls; concrete drivers may embed more state behind it.
type Handle interface{}

// Driver is the seven-step Transport Driver Interface (spec.md §4.3).
// Every method enforces Config.TransferTimeout itself and returns an
// *Error with OutcomeTimeout rather than blocking past it.
type Driver interface {
	Connect(ctx context.Context, cfg Config) error
	Authenticate(ctx context.Context, creds Credentials) error
	PrepareSession(ctx context.Context, mode, directory, lockPolicy string) error
	OpenFile(ctx context.Context, name string, size int64, mode uint32) (Handle, error)
	WriteChunk(ctx context.Context, h Handle, block []byte) error
	CloseFile(ctx context.Context, h Handle) error
	Quit(ctx context.Context) error
}

// ParseCredentials splits a composite credential string into an
// identity file path and a password, in whichever order the
// "<i>...</i>"/"<p>...</p>" tags appear. A bare string with neither
// tag is treated as a plain password.
func ParseCredentials(raw string) (identityPath, password string) {
	for len(raw) > 0 {
		switch {
		case strings.HasPrefix(raw, "<i>"):
			raw = raw[len("<i>"):]
			end := strings.Index(raw, "</i>")
			if end < 0 {
				identityPath = raw
				return identityPath, password
			}
			identityPath = raw[:end]
			raw = raw[end+len("</i>"):]
		case strings.HasPrefix(raw, "<p>"):
			raw = raw[len("<p>"):]
			end := strings.Index(raw, "</p>")
			if end < 0 {
				password = raw
				return identityPath, password
			}
			password = raw[:end]
			raw = raw[end+len("</p>"):]
		default:
			if identityPath == "" && password == "" {
				password = raw
			}
			return identityPath, password
		}
	}
	return identityPath, password
}

// modeFromUnix converts the raw permission bits spec.md's open_file
// step carries (mirroring the C driver's mode_t) to an os.FileMode
// for SFTP's Chmod.
func modeFromUnix(mode uint32) os.FileMode {
	return os.FileMode(mode & 0o7777)
}

// withTimeout runs fn and reclassifies a context.DeadlineExceeded (or
// an fn-reported timeout) as an *Error with OutcomeTimeout, matching
// the C driver's alarm-wrapped write: the underlying call is not
// aborted destructively, its result is just reported as a timeout.
func withTimeout(ctx context.Context, timeout time.Duration, outcome Outcome, fn func(context.Context) error) error {
	if timeout <= 0 {
		if err := fn(ctx); err != nil {
			return &Error{Outcome: outcome, Err: err}
		}
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &Error{Outcome: OutcomeTimeout, Err: ErrTimedOut}
			}
			return &Error{Outcome: outcome, Err: err}
		}
		return nil
	case <-callCtx.Done():
		return &Error{Outcome: OutcomeTimeout, Err: ErrTimedOut}
	}
}
