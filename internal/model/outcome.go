package model

import (
	"encoding/json"
	"fmt"
)

// Status is the verdict of one evaluation.
type Status int

const (
	StatusSuccess Status = iota
	StatusWrongAnswer
	StatusRuntimeError
	StatusTimeout
	StatusUnknownError
	StatusSystemError
)

var statusNames = [...]string{
	StatusSuccess:      "Success",
	StatusWrongAnswer:  "WrongAnswer",
	StatusRuntimeError: "RuntimeError",
	StatusTimeout:      "Timeout",
	StatusUnknownError: "UnknownError",
	StatusSystemError:  "SystemError",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) Valid() bool {
	return s >= StatusSuccess && s <= StatusSystemError
}

func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

func (s Status) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Outcome is the classified result handed back to the caller.
// Expected is set only for StatusWrongAnswer.
type Outcome struct {
	Status   Status  `json:"status"`
	Output   string  `json:"output"`
	Expected *string `json:"expected,omitempty"`
}

func Success(output string) Outcome {
	return Outcome{Status: StatusSuccess, Output: output}
}

func WrongAnswer(output, expected string) Outcome {
	return Outcome{Status: StatusWrongAnswer, Output: output, Expected: &expected}
}

func RuntimeError(stderr string) Outcome {
	return Outcome{Status: StatusRuntimeError, Output: stderr}
}

func Timeout() Outcome {
	return Outcome{Status: StatusTimeout}
}

func UnknownError() Outcome {
	return Outcome{Status: StatusUnknownError}
}

func SystemError(msg string) Outcome {
	return Outcome{Status: StatusSystemError, Output: msg}
}
