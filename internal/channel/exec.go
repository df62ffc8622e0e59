package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"github.com/mattn/go-shellwords"
)

// ExecDialer runs one process per session. The request envelope is written
// to stdin as a JSON line and every stdout line is an event envelope.
type ExecDialer struct {
	cmd []string
	log *slog.Logger
}

func NewExecDialer(command string, log *slog.Logger) (*ExecDialer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse channel command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("channel command empty")
	}
	return &ExecDialer{cmd: args, log: log}, nil
}

func (d *ExecDialer) Dial(sessionID string) Channel {
	return &execChannel{
		lifecycle: newLifecycle(),
		args:      d.cmd,
		id:        sessionID,
		log:       d.log.With(slog.String("session_id", sessionID)),
	}
}

type execChannel struct {
	lifecycle
	args  []string
	id    string
	log   *slog.Logger
	stdin io.WriteCloser
}

func (c *execChannel) Open(ctx context.Context) (<-chan protocol.Inbound, error) {
	runCtx, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	go c.run(runCtx)
	return c.st.events, nil
}

func (c *execChannel) run(ctx context.Context) {
	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Env = append(os.Environ(), "PODCAST_SESSION_ID="+c.id)
	cmd.WaitDelay = time.Second
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.st.disconnect(err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.st.disconnect(err)
		return
	}
	if err := cmd.Start(); err != nil {
		if ctx.Err() == nil {
			c.st.disconnect(fmt.Errorf("start channel command: %w", err))
		}
		return
	}

	c.mu.Lock()
	c.stdin = stdin
	c.mu.Unlock()
	c.st.connected()

	terminal := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		in, err := protocol.Decode(line)
		if err != nil {
			c.log.Warn("dropping undecodable line", slog.String("error", err.Error()))
			continue
		}
		if in.Kind == protocol.EventConnect {
			continue
		}
		c.st.emit(in)
		if in.Terminal() {
			terminal = true
			break
		}
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()
	if terminal || ctx.Err() != nil {
		return
	}
	cause := errors.New("channel command exited")
	switch {
	case scanErr != nil:
		cause = fmt.Errorf("read channel command output: %w", scanErr)
	case waitErr != nil:
		cause = fmt.Errorf("channel command exited: %w", waitErr)
	}
	c.st.disconnect(cause)
}

func (c *execChannel) Send(ctx context.Context, out protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.isDone() {
		return ErrClosed
	}
	if c.stdin == nil {
		return ErrNotConnected
	}
	data, err := protocol.Encode(out)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *execChannel) Close() error {
	c.end()
	c.mu.Lock()
	stdin := c.stdin
	c.stdin = nil
	c.mu.Unlock()
	if stdin != nil {
		_ = stdin.Close()
	}
	return nil
}
