package model

// ExecutionResult is what came out of the sandbox, before interpretation.
type ExecutionResult struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Truncated bool
}
