package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sudankdk/ceejudge/internal/model"
)

func TestPriorityGrid(t *testing.T) {
	const trace = "Traceback (most recent call last):\nZeroDivisionError: division by zero\n"

	tests := []struct {
		name     string
		stderr   string
		exitCode int
		want     model.Status
		output   string
	}{
		{"stderr and deadline", trace, 124, model.StatusRuntimeError, trace},
		{"stderr and nonzero", trace, 1, model.StatusRuntimeError, trace},
		{"stderr and zero", "DeprecationWarning: x\n", 0, model.StatusRuntimeError, "DeprecationWarning: x\n"},
		{"deadline only", "", 124, model.StatusTimeout, ""},
		{"nonzero only", "", 137, model.StatusUnknownError, ""},
		{"clean exit", "", 0, model.StatusSuccess, "Sonuç: 20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := model.ExecutionResult{
				ExitCode: tt.exitCode,
				Stdout:   []byte("Sonuç: 20\n"),
				Stderr:   []byte(tt.stderr),
			}
			got := Classify(raw, "Sonuç: 20")
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.output, got.Output)
			assert.Nil(t, got.Expected)
		})
	}
}

func TestTimeoutDiscardsStdout(t *testing.T) {
	got := Classify(model.ExecutionResult{ExitCode: 124, Stdout: []byte("partial")}, "x")
	assert.Equal(t, model.Timeout(), got)
}

func TestKilledAfterDeadlineIsUnknownError(t *testing.T) {
	got := Classify(model.ExecutionResult{ExitCode: 137, Stdout: []byte("partial")}, "partial")
	assert.Equal(t, model.UnknownError(), got)
}

func TestWrongAnswer(t *testing.T) {
	got := Classify(model.ExecutionResult{Stdout: []byte("Sonuç: 30\n")}, "  Sonuç: 20\r\n")
	assert.Equal(t, model.StatusWrongAnswer, got.Status)
	assert.Equal(t, "Sonuç: 30", got.Output)
	if assert.NotNil(t, got.Expected) {
		assert.Equal(t, "Sonuç: 20", *got.Expected)
	}
}

func TestNormalizationRoundTrip(t *testing.T) {
	crlf, lf := "a\r\nb\r\n", "a\nb\n"

	assert.Equal(t, Normalize(crlf), Normalize(lf))
	assert.Equal(t, model.Success("a\nb"), Classify(model.ExecutionResult{Stdout: []byte(crlf)}, lf))
	assert.Equal(t, model.Success("a\nb"), Classify(model.ExecutionResult{Stdout: []byte(lf)}, crlf))
}

func TestEmptyOutputAgainstEmptyExpected(t *testing.T) {
	assert.Equal(t, model.Success(""), Classify(model.ExecutionResult{Stdout: []byte("\n\n")}, ""))
}

func TestDeterministic(t *testing.T) {
	raw := model.ExecutionResult{Stdout: []byte("1 2 3")}
	assert.Equal(t, Classify(raw, "1 2 3"), Classify(raw, "1 2 3"))
}

func TestInvalidUTF8IsReplaced(t *testing.T) {
	got := Classify(model.ExecutionResult{Stderr: []byte("bad \xff byte")}, "")
	assert.Equal(t, "bad � byte", got.Output)
}
