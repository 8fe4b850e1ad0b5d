package sandbox

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// TimeoutExitCode is what timeout(1) exits with when it kills the program.
const TimeoutExitCode = 124

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)

// Command describes one program run inside a sandbox: Interpreter Script,
// reading StdinFile, killed after TimeoutSeconds.
type Command struct {
	Interpreter    string
	Dir            string
	Script         string
	StdinFile      string
	TimeoutSeconds int
	// KillAfter sends SIGKILL this many seconds after the SIGTERM.
	KillAfter int
}

// Shell renders the command for /bin/sh -c. Every fragment comes from
// configuration, never from the submission, and is still checked and quoted.
func (c Command) Shell() (string, error) {
	if c.TimeoutSeconds <= 0 {
		return "", fmt.Errorf("%w: timeout must be positive, got %d", ErrInvalidCommand, c.TimeoutSeconds)
	}
	if c.KillAfter < 0 {
		return "", fmt.Errorf("%w: kill-after must not be negative", ErrInvalidCommand)
	}
	for _, w := range []string{c.Interpreter, c.Dir, c.Script, c.StdinFile} {
		if !safeWord.MatchString(w) || strings.Contains(w, "..") {
			return "", fmt.Errorf("%w: unsafe fragment %q", ErrInvalidCommand, w)
		}
	}

	var b strings.Builder
	b.WriteString("timeout ")
	if c.KillAfter > 0 {
		fmt.Fprintf(&b, "-k %d ", c.KillAfter)
	}
	fmt.Fprintf(&b, "%d %s %s < %s",
		c.TimeoutSeconds,
		quote(c.Interpreter),
		quote(path.Join(c.Dir, c.Script)),
		quote(path.Join(c.Dir, c.StdinFile)),
	)
	return b.String(), nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
