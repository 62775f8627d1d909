package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/drumextract/api/internal/model"
)

// OperationError reports a failed external stage: the tool exited non-zero,
// an expected artifact was missing afterwards, or the input could not be
// read. Stages are never retried.
type OperationError struct {
	Stage  model.Stage
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func failf(stage model.Stage, format string, args ...interface{}) error {
	return &OperationError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// Executor abstracts subprocess execution so runners can be tested without
// the real CLIs installed.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

type commandExecutor struct{}

// Run starts the tool and feeds each line of its combined output to onLine.
// Progress bars rewrite the current line with carriage returns, so the
// scanner splits on both \r and \n.
func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Split(scanControlLines)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
	}()

	err := cmd.Wait()
	pw.Close()
	<-done

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// scanControlLines is a bufio.SplitFunc that treats \r and \n both as line
// terminators.
func scanControlLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var percentRe = regexp.MustCompile(`(\d+)%`)

// parsePercent extracts a percent marker from one line of tool output.
// Extraction is best effort: lines without a marker simply produce no
// update, never a failure.
func parsePercent(line string) (int, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}
