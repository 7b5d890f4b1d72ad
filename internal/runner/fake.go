package runner

import (
	"context"
	"strings"
	"sync"
)

// Call is one invocation recorded by Fake.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is an in-memory Runner for tests. Handler decides the outcome of each call;
// a nil Handler succeeds with empty output. Safe for concurrent use.
type Fake struct {
	Handler func(call Call) (Result, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to Handler.
func (f *Fake) Run(_ context.Context, name string, args ...string) (Result, error) {
	call := Call{Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.Handler == nil {
		return Result{}, nil
	}
	return f.Handler(call)
}

// Calls returns a copy of every recorded call in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsWithPrefix returns the recorded calls whose command line starts with prefix.
func (f *Fake) CallsWithPrefix(prefix string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, c)
		}
	}
	return out
}
