package ffmpeg

import (
	"fmt"
	"regexp"
	"strings"
)

var errorLine = regexp.MustCompile(`(?m)^.*(?:Error|error|Invalid|No such file).*$`)

// Error is returned when an ffmpeg invocation exits unsuccessfully.
type Error struct {
	Args   []string
	Output string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ffmpeg %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Reason())
}

func (e *Error) Unwrap() error { return e.Err }

// Reason picks the most relevant line out of ffmpeg's (typically very long)
// output, which otherwise mostly describes how the binary was compiled.
func (e *Error) Reason() string {
	if matches := errorLine.FindAllString(e.Output, -1); len(matches) > 0 {
		return strings.TrimSpace(matches[len(matches)-1])
	}

	lines := strings.Split(strings.TrimSpace(e.Output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
