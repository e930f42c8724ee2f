package pipeline

import (
	"bufio"
	"io"
	"strings"
)

// relayStream copies a line-oriented daemon stream into the stage log one
// line at a time, so the log is readable while the operation is still
// running, and hands the final non-empty line to onDone to decide the stage
// status. With no onDone hook the stage succeeds iff the stream produced any
// output.
func relayStream(stream io.Reader, out io.Writer,
	onDone func(last string) (int, error)) (int, error) {
	var last string

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := io.WriteString(out, line+"\n"); err != nil {
			return 1, err
		}
		if strings.TrimSpace(line) != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return 1, err
	}

	if onDone != nil {
		return onDone(last)
	}
	if last == "" {
		return 1, nil
	}
	return 0, nil
}
