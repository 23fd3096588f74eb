package log

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Lines longer than maxLineLength bytes are clipped
const maxLineLength = 4096

// Exec runs cmd and sends its outputs to Logger(ctx).
// Unless cmd.Stdout (resp. cmd.Stderr) is already set, stdout is logged at Info level
// and stderr at Warn level. On ctx cancellation, the process is killed.
func Exec(ctx context.Context, cmd *exec.Cmd) error {

	logger := Logger(ctx)
	var pipes []pipe
	if cmd.Stdout == nil {
		r, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("Exec.StdoutPipe: %w", err)
		}
		pipes = append(pipes, pipe{r, zapcore.InfoLevel})
	}
	if cmd.Stderr == nil {
		r, err := cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("Exec.StderrPipe: %w", err)
		}
		pipes = append(pipes, pipe{r, zapcore.WarnLevel})
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("Exec.Start: %w", err)
	}

	wg := sync.WaitGroup{}
	for _, p := range pipes {
		wg.Add(1)
		go func(p pipe) {
			defer wg.Done()
			p.log(logger, maxLineLength)
		}(p)
	}

	done := make(chan error, 1)
	go func() {
		// pipes must be drained before Wait
		wg.Wait()
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := cmd.Process.Kill(); err != nil {
			logger.Sugar().Warnf("kill: %v", err)
		}
		<-done
		return ctx.Err()
	}
}

type pipe struct {
	r     io.Reader
	level zapcore.Level
}

func (p pipe) log(logger *zap.Logger, maxLineLength int) {
	sc := bufio.NewScanner(p.r)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if maxLineLength > 0 && len(line) > maxLineLength {
			line = line[:maxLineLength] + " ...[Message clipped]"
		}
		if ce := logger.Check(p.level, line); ce != nil {
			ce.Write()
		}
	}
	if err := sc.Err(); err != nil {
		logger.Sugar().Warnf("read output: %v", err)
	}
}
