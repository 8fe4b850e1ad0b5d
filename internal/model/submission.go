package model

import (
	"errors"
	"fmt"

	"github.com/docker/go-units"
)

const (
	DefaultTimeoutSeconds = 10
	DefaultMemoryLimit    = "256m"
)

var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is one piece of untrusted code plus the input it is run against
// and the output it is expected to print.
type Submission struct {
	Code           string `json:"code"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expectedOutput"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
	MemoryLimit    string `json:"memoryLimit,omitempty"`
}

// WithDefaults fills the zero-valued limits.
func (s Submission) WithDefaults() Submission {
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.MemoryLimit == "" {
		s.MemoryLimit = DefaultMemoryLimit
	}
	return s
}

// Validate checks the limits against maxTimeout. It does not inspect Code.
func (s Submission) Validate(maxTimeout int) error {
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: timeoutSeconds must not be negative", ErrInvalidSubmission)
	}
	if maxTimeout > 0 && s.TimeoutSeconds > maxTimeout {
		return fmt.Errorf("%w: timeoutSeconds must be at most %d", ErrInvalidSubmission, maxTimeout)
	}
	if s.MemoryLimit != "" {
		if _, err := units.RAMInBytes(s.MemoryLimit); err != nil {
			return fmt.Errorf("%w: memoryLimit %q: %v", ErrInvalidSubmission, s.MemoryLimit, err)
		}
	}
	return nil
}
