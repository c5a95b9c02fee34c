package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/Paintersrp/rune2e/internal/config"
)

// commandCheck runs a user supplied command; exit status zero means ready.
// Output is kept only to explain a failure.
type commandCheck struct {
	argv []string
}

func newCommandCheck(spec *config.CommandProbeSpec) (*commandCheck, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("readiness command requires at least one argument")
	}
	return &commandCheck{argv: slices.Clone(spec.Command)}, nil
}

func (c *commandCheck) Probe(ctx context.Context) error {
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	// Grandchildren can hold the output pipe open after a cancel.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("run readiness command %q: %w", c.argv[0], err)
	}
	msg := fmt.Sprintf("readiness command exited with status %d", exitErr.ExitCode())
	if last := lastLine(output.String()); last != "" {
		msg += ": " + last
	}
	return errors.New(msg)
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n\t ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
