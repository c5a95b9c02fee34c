//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

func (p *processInstance) terminate(ctx context.Context) error {
	if p.cmd.Process == nil {
		return nil
	}
	// Attempt a graceful shutdown first.
	p.terminations.Add(1)
	_ = p.cmd.Process.Signal(os.Interrupt)

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()
	select {
	case <-p.waitDone:
		return nil
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %s: %w", p.name, err)
	}
	select {
	case <-p.waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func interrupt(proc *os.Process) error {
	return proc.Kill()
}
