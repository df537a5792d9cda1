// Package worker drives one long-lived worker subprocess as a
// synchronous-per-call service. Requests are newline-delimited JSON-RPC
// envelopes written to the child's stdin; each request is answered by
// exactly one line on the child's stdout, matched by correlation ID.
// Calls are strictly alternating: a second call blocks until the previous
// one's response has been consumed.
//
// Every failure mode (process not running, broken pipe, EOF, malformed
// response) is reported as an error-status Result. Call never panics and
// never returns a Go error, so a dead worker degrades a turn instead of
// aborting it.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	jsonRPCVersion   = "2.0"
	maxLineSize      = 8 * 1024 * 1024
	defaultStopGrace = 3 * time.Second
)

// Config controls how the worker subprocess is spawned and stopped.
type Config struct {
	// Command is the argv of the worker process, e.g.
	// []string{"python3", "-u", "worker.py"}.
	Command []string

	// StopGrace is how long Stop waits after a termination signal before
	// killing the process. Zero means the default of 3 seconds.
	StopGrace time.Duration

	Logger *slog.Logger
}

// Client manages one worker subprocess and issues correlated calls to it.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// callMu serializes Call: the wire protocol is half-duplex, one
	// outstanding exchange at a time, no pipelining.
	callMu sync.Mutex

	mu      sync.Mutex
	proc    *process
	pending map[string]chan rpcResponse
}

// process bundles the state of one spawned worker instance.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      string         `json:"id"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is the error object of a worker response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// New creates a Client. The worker process is not spawned until Start.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	return &Client{
		cfg:     cfg,
		logger:  logger.With("component", "worker"),
		pending: make(map[string]chan rpcResponse),
	}
}

// Running reports whether the worker process is currently alive.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil
}

// Start spawns the worker process. Calling Start while the process is
// alive is a no-op. After a crash or Stop, Start spawns a fresh process.
// The lock is held across the spawn, so concurrent Starts launch at most
// one process.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc != nil {
		return nil
	}
	if len(c.cfg.Command) == 0 {
		return ErrNoCommand
	}

	cmd := exec.Command(c.cfg.Command[0], c.cfg.Command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("worker: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("worker: start %s: %w", c.cfg.Command[0], err)
	}

	proc := &process{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	c.proc = proc

	c.logger.Info("worker: started", "cmd", c.cfg.Command[0], "pid", cmd.Process.Pid)

	go c.readLoop(proc, bufio.NewReaderSize(stdout, 64*1024))
	go c.stderrLoop(stderr)
	go c.waitLoop(proc)
	return nil
}

// Stop requests graceful termination, waits up to the configured grace
// period, then kills the process. It is idempotent and safe to call even
// if the worker never started.
func (c *Client) Stop() error {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		return nil
	}

	if proc.cmd == nil || proc.cmd.Process == nil {
		// Pipe-backed instance with no OS process behind it.
		c.handleExit(proc, nil)
		return nil
	}

	_ = proc.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-proc.done:
	case <-time.After(c.cfg.StopGrace):
		c.logger.Warn("worker: grace period elapsed, killing")
		_ = proc.cmd.Process.Kill()
		<-proc.done
	}
	return nil
}

// Call sends one correlated request to the worker and blocks until its
// response line arrives or ctx is cancelled. There is no built-in call
// timeout; callers control deadlines through ctx.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) Result {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		return errorResult("worker process not available")
	}

	id := uuid.NewString()
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	})
	if err != nil {
		return errorResult("encode request: " + err.Error())
	}

	respCh := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	c.logger.Debug("worker: request", "method", method, "id", id)

	if _, err := proc.stdin.Write(append(payload, '\n')); err != nil {
		c.removePending(id)
		c.handleExit(proc, err)
		return errorResult("write request: " + err.Error())
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return errorResult("no response from worker process")
		}
		return mapResponse(method, resp)
	case <-ctx.Done():
		c.removePending(id)
		return errorResult("call cancelled: " + ctx.Err().Error())
	}
}

func mapResponse(method string, resp rpcResponse) Result {
	switch {
	case resp.Error != nil:
		return Result{
			Status:  StatusError,
			Message: resp.Error.Message,
			Code:    resp.Error.Code,
		}
	case len(resp.Result) > 0:
		return Result{Status: StatusSuccess, Output: resp.Result}
	default:
		return errorResult("unknown response format from worker for method " + method)
	}
}

func (c *Client) readLoop(proc *process, reader *bufio.Reader) {
	for {
		line, err := readLine(reader)
		if err != nil {
			c.handleExit(proc, err)
			return
		}
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			// A malformed line fails the call that is waiting for it;
			// without an ID the best we can do is fail all pending.
			c.logger.Warn("worker: invalid response line", "error", err)
			c.failPending("malformed response from worker: " + err.Error())
			continue
		}
		if resp.ID == "" {
			c.logger.Warn("worker: response without id, dropping")
			continue
		}

		c.mu.Lock()
		ch := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()

		if ch != nil {
			ch <- resp
			close(ch)
		} else {
			c.logger.Warn("worker: response for unknown id", "id", resp.ID)
		}
	}
}

func readLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) > maxLineSize {
		return nil, fmt.Errorf("worker: response line exceeds %d bytes", maxLineSize)
	}
	return bytesTrimNewline(line), nil
}

func bytesTrimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func (c *Client) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		c.logger.Warn("worker: stderr", "message", line)
	}
}

func (c *Client) waitLoop(proc *process) {
	_ = proc.cmd.Wait()
	c.handleExit(proc, io.EOF)
}

// handleExit tears down the current process state and fails any pending
// call. It is a no-op if proc is no longer the active instance.
func (c *Client) handleExit(proc *process, err error) {
	c.mu.Lock()
	if c.proc != proc {
		c.mu.Unlock()
		return
	}
	c.proc = nil
	pending := c.pending
	c.pending = make(map[string]chan rpcResponse)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}

	select {
	case <-proc.done:
	default:
		close(proc.done)
	}

	if err != nil && err != io.EOF {
		c.logger.Warn("worker: exited", "error", err)
	} else {
		c.logger.Info("worker: exited")
	}
}

func (c *Client) failPending(message string) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan rpcResponse)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- rpcResponse{ID: id, Error: &RPCError{Code: -32700, Message: message}}
		close(ch)
	}
}

func (c *Client) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
