package api

// Defaults for the rexecd HTTP listener.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8000
)

// ExecuteRequest is the caller-facing request for one task run.
// MaxAttempts of zero means "use the server default".
type ExecuteRequest struct {
	Prompt      string `json:"prompt"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

// ExecuteResponse is the terminal report for one task run. It is always
// well-formed: failures are reported through Success/Error, never as a
// transport-level fault.
type ExecuteResponse struct {
	Success       bool    `json:"success"`
	Code          string  `json:"code"`
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	Attempts      int     `json:"attempts"`
	ExecutionTime float64 `json:"execution_time"`
}

type HealthResponse struct {
	Status              string `json:"status"`
	GeneratorConfigured bool   `json:"generator_configured"`
}

// Run is a completed task run as recorded in the history store.
type Run struct {
	RunID         string  `json:"run_id"`
	Prompt        string  `json:"prompt"`
	Success       bool    `json:"success"`
	Code          string  `json:"code"`
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	Attempts      int     `json:"attempts"`
	ExecutionTime float64 `json:"execution_time"`
	CreatedAt     string  `json:"created_at"`
}
