package sandbox

import "context"

// Messages reported in Result.Error.
const (
	MsgUnsupportedLanguage = "Unsupported language"
	MsgTimedOut            = "Execution timed out (orchestration)"
	MsgNoOutput            = "Container returned no output"
	MsgInvalidJSON         = "Invalid JSON from container"
)

// Result is the JSON document a run produces. A runner image reports stdout,
// stderr and returncode; orchestration problems are reported through Error.
// Stdout and Stderr are pointers so that an empty but present stream survives
// encoding.
type Result struct {
	Stdout     *string `json:"stdout,omitempty"`
	Stderr     *string `json:"stderr,omitempty"`
	ReturnCode *int    `json:"returncode,omitempty"`
	// Error is set when the run could not be carried out.
	Error string `json:"error,omitempty"`
	// Details adds context to Error.
	Details string `json:"details,omitempty"`
	// Raw is the unparsed container output when it was not valid JSON.
	Raw string `json:"raw,omitempty"`
}

// ErrorResult builds a Result that only carries an error message.
func ErrorResult(msg string) *Result {
	return &Result{Error: msg}
}

// Manager runs untrusted code in isolation.
type Manager interface {
	// Run executes code for language with input on stdin. Problems inside the
	// run (timeouts, bad runner output) are reported in the Result; a non-nil
	// error means the manager itself failed.
	Run(ctx context.Context, language, code, input string) (*Result, error)

	// Languages lists the language ids this manager can run.
	Languages() []string

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}
