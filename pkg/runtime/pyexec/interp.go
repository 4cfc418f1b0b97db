// Package pyexec drives a single persistent Python interpreter process.
// Snippets are executed one at a time in a shared globals dict, so state
// (variables, imports, function definitions) persists across calls for the
// lifetime of the interpreter. The local execution environment and the
// sandbox server both build on this package.
package pyexec

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// driverScript is the Python-side loop: read one JSON request per line from
// stdin, exec the code against a shared globals dict, reply with one JSON
// line carrying captured stdout/stderr. Uncaught exceptions become stderr
// text; they never kill the interpreter.
const driverScript = `
import sys, json, io, traceback, contextlib
g = {"__name__": "__main__"}
for line in sys.stdin:
    try:
        req = json.loads(line)
    except Exception:
        continue
    out, err = io.StringIO(), io.StringIO()
    try:
        with contextlib.redirect_stdout(out), contextlib.redirect_stderr(err):
            exec(compile(req["code"], "<session>", "exec"), g)
    except BaseException:
        err.write(traceback.format_exc())
    sys.stdout.write(json.dumps({"stdout": out.getvalue(), "stderr": err.getvalue()}) + "\n")
    sys.stdout.flush()
`

// maxReplySize bounds a single driver reply line (captured output is
// additionally truncated downstream by the dispatcher).
const maxReplySize = 16 * 1024 * 1024

// Options configures a new interpreter.
type Options struct {
	// Python is the interpreter binary. Defaults to "python3".
	Python string

	// WorkDir is the interpreter's working directory.
	WorkDir string

	// Env is appended to the inherited environment (e.g., OUTPUT_DIR,
	// PYTHONPATH for per-session package installs).
	Env []string
}

// Result carries the captured output of one executed snippet.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Interp is a handle to one running interpreter process. Safe for
// sequential use; concurrent Exec calls are serialized.
type Interp struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Scanner
	closed bool
}

type request struct {
	Code string `json:"code"`
}

type reply struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Start launches the interpreter process and returns a handle to it.
func Start(opts Options) (*Interp, error) {
	python := opts.Python
	if python == "" {
		python = "python3"
	}

	cmd := exec.Command(python, "-u", "-c", driverScript)
	cmd.Dir = opts.WorkDir
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	// The driver redirects all execution output through the JSON protocol;
	// anything on the process's own stderr is interpreter noise.
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start interpreter %q: %w", python, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxReplySize)

	return &Interp{
		cmd:   cmd,
		stdin: stdin,
		out:   scanner,
	}, nil
}

// Exec runs one snippet and returns its captured output. A context
// deadline bounds the call; on expiry the interpreter is killed (its state
// is unrecoverable at that point) and a timeout error is returned.
func (i *Interp) Exec(ctx context.Context, code string) (*Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil, fmt.Errorf("interpreter is closed")
	}

	line, err := json.Marshal(request{Code: code})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	line = append(line, '\n')

	start := time.Now()
	if _, err := i.stdin.Write(line); err != nil {
		return nil, fmt.Errorf("write to interpreter: %w", err)
	}

	type scanResult struct {
		rep reply
		err error
	}
	ch := make(chan scanResult, 1)
	go func() {
		if !i.out.Scan() {
			err := i.out.Err()
			if err == nil {
				err = fmt.Errorf("interpreter exited")
			}
			ch <- scanResult{err: err}
			return
		}
		var rep reply
		if err := json.Unmarshal(i.out.Bytes(), &rep); err != nil {
			ch <- scanResult{err: fmt.Errorf("decode reply: %w", err)}
			return
		}
		ch <- scanResult{rep: rep}
	}()

	select {
	case <-ctx.Done():
		// The snippet is still running; the only way out is to kill the
		// process. State is lost, which the caller surfaces as an error.
		i.kill()
		return nil, fmt.Errorf("execution timed out after %s", time.Since(start).Round(time.Millisecond))
	case res := <-ch:
		if res.err != nil {
			i.kill()
			return nil, res.err
		}
		return &Result{
			Stdout:   res.rep.Stdout,
			Stderr:   res.rep.Stderr,
			Duration: time.Since(start),
		}, nil
	}
}

// Close terminates the interpreter process. Safe to call more than once.
func (i *Interp) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.kill()
	return nil
}

// kill must be called with the mutex held.
func (i *Interp) kill() {
	if i.closed {
		return
	}
	i.closed = true
	i.stdin.Close()
	if i.cmd.Process != nil {
		i.cmd.Process.Kill()
	}
	go i.cmd.Wait() // reap
}
