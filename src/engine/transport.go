package engine

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// Transport is a line-oriented channel to one engine process.
// Lines is closed when the engine stops producing output.
type Transport interface {
	Send(line string) error
	Lines() <-chan string
	Close() error
}

// Process runs a UCI engine binary and talks to it over stdin/stdout.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer
	lines  chan string
	stop   chan struct{}
	exited chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// StartProcess starts the engine at path.
func StartProcess(logger *slog.Logger, path string, args ...string) (*Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", path, err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		writer: bufio.NewWriter(stdin),
		lines:  make(chan string, 256),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logger.With("engine", path),
	}
	go p.readLoop(stdout)
	p.logger.Info("engine process started", "pid", cmd.Process.Pid)
	return p, nil
}

func (p *Process) readLoop(stdout io.Reader) {
	defer close(p.exited)
	defer close(p.lines)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case p.lines <- scanner.Text():
		case <-p.stop:
			// nobody listens any more; keep draining so the process can exit
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("engine output read failed", "error", err)
	}
	if err := p.cmd.Wait(); err != nil {
		p.logger.Warn("engine process exited", "error", err)
	} else {
		p.logger.Info("engine process exited")
	}
}

// Send writes one command line to the engine.
func (p *Process) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if _, err := p.writer.WriteString(line + "\n"); err != nil {
		return err
	}
	return p.writer.Flush()
}

func (p *Process) Lines() <-chan string {
	return p.lines
}

// Close closes stdin and waits briefly for the engine to exit before killing it.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	err := p.stdin.Close()
	p.mu.Unlock()

	select {
	case <-p.exited:
	case <-time.After(2 * time.Second):
		p.logger.Warn("engine did not exit, killing it")
		if kerr := p.cmd.Process.Kill(); kerr != nil {
			return kerr
		}
		<-p.exited
	}
	return err
}
