package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request is an immutable snapshot of what to run, taken when the run is triggered.
type Request struct {
	ID         string `json:"id"`
	LanguageID string `json:"language"`
	Source     string `json:"source"`
	Stdin      string `json:"stdin"`
}

// NewRequest snapshots a run request with a fresh ID.
func NewRequest(languageID, source, stdin string) Request {
	return Request{
		ID:         uuid.New().String(),
		LanguageID: languageID,
		Source:     source,
		Stdin:      stdin,
	}
}

// Kind discriminates Result.
type Kind int

const (
	// KindSuccess carries Stdout.
	KindSuccess Kind = iota
	// KindRuntimeError carries Stderr.
	KindRuntimeError
	// KindServiceError carries Message.
	KindServiceError
	// KindTimeout means the client-side deadline expired before a response arrived.
	KindTimeout
	// KindUnrecognized means the response had none of the recognised fields.
	// It is displayed as a timeout.
	KindUnrecognized
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRuntimeError:
		return "runtime_error"
	case KindServiceError:
		return "service_error"
	case KindTimeout:
		return "timeout"
	case KindUnrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind := KindSuccess; kind <= KindUnrecognized; kind++ {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown result kind %q", text)
}

// Result is the classified outcome of one run. Only the field matching Kind is set.
type Result struct {
	Kind     Kind          `json:"kind"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Success builds a KindSuccess result.
func Success(stdout string) Result { return Result{Kind: KindSuccess, Stdout: stdout} }

// RuntimeError builds a KindRuntimeError result.
func RuntimeError(stderr string) Result { return Result{Kind: KindRuntimeError, Stderr: stderr} }

// ServiceError builds a KindServiceError result.
func ServiceError(message string) Result { return Result{Kind: KindServiceError, Message: message} }

// Timeout builds a KindTimeout result.
func Timeout() Result { return Result{Kind: KindTimeout} }

// Unrecognized builds a KindUnrecognized result; message describes what was wrong.
func Unrecognized(message string) Result { return Result{Kind: KindUnrecognized, Message: message} }

// Failed reports whether the result should be shown with error severity.
func (r Result) Failed() bool {
	return r.Kind != KindSuccess
}

// Label is the user-facing name of the outcome.
func (r Result) Label() string {
	switch r.Kind {
	case KindSuccess:
		return "Success"
	case KindRuntimeError:
		return "Runtime error"
	case KindServiceError:
		return "Service error"
	default:
		return "Timeout"
	}
}

// Output renders the result for the output panel. startedAt is the trigger time.
func (r Result) Output(startedAt time.Time) string {
	switch r.Kind {
	case KindSuccess:
		return fmt.Sprintf("[%s] Starting execution...\n%s", startedAt.Format(time.DateTime), r.Stdout)
	case KindRuntimeError:
		return r.Stderr
	case KindServiceError:
		return r.Message
	default:
		return "Error: Execution timed out."
	}
}
