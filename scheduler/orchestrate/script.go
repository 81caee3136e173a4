package orchestrate

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/nightshift/errors"
	"github.com/teranos/nightshift/logger"
)

// Script is a startup or shutdown script running as a child process. The
// loop never waits on it: Poll reports the exit once the process is gone.
type Script struct {
	line   string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	exit int
	err  error
}

// StartScript launches line. The line is split like a shell would; if the
// quoting is broken it falls back to splitting on whitespace.
func StartScript(ctx context.Context, line string, log *zap.SugaredLogger) (*Script, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		log.Debugw("Quote parsing failed, using simple split", "line", line, logger.FieldError, err)
		args = strings.Fields(line)
	}
	if len(args) == 0 {
		return nil, errors.NewInvalidRequestError("empty script command")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Stdout = &scriptLogger{log: log, name: args[0]}
	cmd.Stderr = &scriptLogger{log: log, name: args[0], stderr: true}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "failed to start script %s", args[0])
	}
	log.Infow("Script started", logger.FieldFile, args[0], "pid", cmd.Process.Pid)

	s := &Script{line: line, cmd: cmd, cancel: cancel, done: make(chan struct{})}
	go s.wait()
	return s, nil
}

func (s *Script) wait() {
	err := s.cmd.Wait()
	s.mu.Lock()
	s.err = err
	s.exit = 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			s.exit = exitErr.ExitCode()
		} else {
			s.exit = -1
		}
	}
	s.mu.Unlock()
	close(s.done)
	s.cancel()
}

// Poll reports whether the script has exited and with which code.
func (s *Script) Poll() (finished bool, exitCode int) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return true, s.exit
	default:
		return false, 0
	}
}

// Err returns the wait error of a finished script.
func (s *Script) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Terminate kills the script if it is still running.
func (s *Script) Terminate() {
	s.cancel()
}

// Line returns the command line the script was started with.
func (s *Script) Line() string { return s.line }

// scriptLogger logs script output line by line.
type scriptLogger struct {
	log    *zap.SugaredLogger
	name   string
	stderr bool
	buf    strings.Builder
}

func (l *scriptLogger) Write(p []byte) (n int, err error) {
	l.buf.Write(p)
	for {
		line, rest, found := strings.Cut(l.buf.String(), "\n")
		if !found {
			break
		}
		l.buf.Reset()
		l.buf.WriteString(rest)

		if line = strings.TrimSpace(line); line != "" {
			if l.stderr {
				l.log.Warnw("Script output", logger.FieldFile, l.name, "message", line)
			} else {
				l.log.Infow("Script output", logger.FieldFile, l.name, "message", line)
			}
		}
	}
	return len(p), nil
}
