package tool

import (
	"context"
	"os/exec"
	"sync"
)

// Fake records invocations and answers them with a handler. It is used by
// tests of the stages that shell out.
type Fake struct {
	mu      sync.Mutex
	Calls   []Command
	Handler func(Command) (Result, error)
	Paths   map[string]string // LookPath answers; missing names are not found
}

func (f *Fake) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	h := f.Handler
	f.mu.Unlock()
	if h == nil {
		return Result{}, nil
	}
	return h(cmd)
}

func (f *Fake) LookPath(name string) (string, error) {
	if p, ok := f.Paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Count returns how many calls named name were made.
func (f *Fake) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Name == name {
			n++
		}
	}
	return n
}
