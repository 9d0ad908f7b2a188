package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ayusman/thumbtrial/internal/trial"
)

// DefaultHookTimeout bounds a single hook run.
const DefaultHookTimeout = 2 * time.Second

// ExecSink runs a local command once per packet, with the packet JSON on
// stdin. Lab scripts use it to trigger stimuli or append to their own logs.
// Relative commands resolve against the service's working directory.
// A non-zero exit status is an error; stdout is ignored.
type ExecSink struct {
	command string
	args    []string
	timeout time.Duration
}

// NewExecSink creates a hook sink. A non-positive timeout uses DefaultHookTimeout.
func NewExecSink(command string, args []string, timeout time.Duration) *ExecSink {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	return &ExecSink{command: command, args: args, timeout: timeout}
}

// Name implements Sink.
func (s *ExecSink) Name() string {
	return "exec " + filepath.Base(s.command)
}

// Send implements Sink.
func (s *ExecSink) Send(ctx context.Context, p trial.Packet) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Stdin = bytes.NewReader(body)
	cmd.WaitDelay = 500 * time.Millisecond

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("hook timed out after %v", s.timeout)
	}
	if err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("hook failed: %w, stderr: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}
