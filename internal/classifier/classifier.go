// Package classifier turns the raw signals of a sandbox run into an Outcome.
package classifier

import (
	"strings"

	"github.com/sudankdk/ceejudge/internal/model"
	"github.com/sudankdk/ceejudge/internal/sandbox"
)

// Classify checks, in order: anything on stderr, the timeout exit code, any
// other non-zero exit, and finally compares normalized stdout with expected.
//
// Exit 137 is UnknownError even though it can mean the deadline passed: a
// program that ignores SIGTERM is SIGKILLed by timeout -k, which then
// reports 128+9 rather than 124.
func Classify(raw model.ExecutionResult, expected string) model.Outcome {
	if len(raw.Stderr) > 0 {
		return model.RuntimeError(decode(raw.Stderr))
	}
	if raw.ExitCode == sandbox.TimeoutExitCode {
		return model.Timeout()
	}
	if raw.ExitCode != 0 {
		return model.UnknownError()
	}

	actual := Normalize(decode(raw.Stdout))
	want := Normalize(expected)
	if actual == want {
		return model.Success(actual)
	}
	return model.WrongAnswer(actual, want)
}

// Normalize trims surrounding whitespace and turns CRLF into LF.
func Normalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\r\n", "\n")
}

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
