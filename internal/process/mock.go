package process

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Call records a single MockRunner invocation.
type Call struct {
	Method string
	Cmd    Cmd
}

// Line returns "name arg1 arg2 ...", which is what tests usually match on.
func (c Call) Line() string {
	return c.Cmd.String()
}

// Response is a scripted reply for MockRunner.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// MockRunner is a Runner for tests. Responses are matched by command-line
// prefix; the longest matching prefix wins. Unmatched commands succeed with
// empty output unless Strict is set.
type MockRunner struct {
	// RunFunc, when set, takes precedence over Responses.
	RunFunc func(ctx context.Context, cmd Cmd) (Result, error)

	// Responses maps a command-line prefix to a reply.
	Responses map[string]Response

	// Queue holds one-shot replies per prefix, consumed in order before
	// falling back to Responses.
	Queue map[string][]Response

	// StreamOutput is written to stdout by Stream.
	StreamOutput string

	// Strict makes unmatched commands fail.
	Strict bool

	mu    sync.Mutex
	calls []Call
}

// NewMockRunner returns an empty MockRunner.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Responses: map[string]Response{},
		Queue:     map[string][]Response{},
	}
}

// On registers a persistent reply for commands starting with prefix.
func (m *MockRunner) On(prefix string, r Response) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[prefix] = r
	return m
}

// Enqueue registers one-shot replies for commands starting with prefix.
func (m *MockRunner) Enqueue(prefix string, rs ...Response) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queue[prefix] = append(m.Queue[prefix], rs...)
	return m
}

// Run records the call and returns the scripted reply.
func (m *MockRunner) Run(ctx context.Context, cmd Cmd) (Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "Run", Cmd: cmd})
	fn := m.RunFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, cmd)
	}
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}

	resp, ok := m.lookup(cmd.String())
	if !ok {
		if m.Strict {
			return Result{ExitCode: -1}, fmt.Errorf("mock: unexpected command %q", cmd.String())
		}
		return Result{}, nil
	}

	res := Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}
	if resp.Err != nil {
		return res, resp.Err
	}
	if resp.ExitCode != 0 {
		return res, &ExitError{Cmd: cmd.String(), ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return res, nil
}

// Stream records the call and writes StreamOutput.
func (m *MockRunner) Stream(ctx context.Context, cmd Cmd, stdout, stderr io.Writer) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "Stream", Cmd: cmd})
	out := m.StreamOutput
	m.mu.Unlock()

	if out != "" && stdout != nil {
		if _, err := io.WriteString(stdout, out); err != nil {
			return err
		}
	}
	resp, ok := m.lookup(cmd.String())
	if ok && resp.Err != nil {
		return resp.Err
	}
	return ctx.Err()
}

// Calls returns a copy of the recorded calls.
func (m *MockRunner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Lines returns the recorded command lines in order.
func (m *MockRunner) Lines() []string {
	calls := m.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Line())
	}
	return out
}

// Reset clears recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockRunner) lookup(line string) (Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	best := ""
	found := false
	for prefix, q := range m.Queue {
		if len(q) > 0 && strings.HasPrefix(line, prefix) && len(prefix) >= len(best) {
			best, found = prefix, true
		}
	}
	if found {
		resp := m.Queue[best][0]
		m.Queue[best] = m.Queue[best][1:]
		return resp, true
	}

	var resp Response
	for prefix, r := range m.Responses {
		if strings.HasPrefix(line, prefix) && (!found || len(prefix) > len(best)) {
			best, resp, found = prefix, r, true
		}
	}
	return resp, found
}

var _ Runner = (*MockRunner)(nil)
var _ Runner = (*ExecRunner)(nil)
