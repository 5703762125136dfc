package provider

import (
	"context"
	"sync"
)

// Fake is a scripted provider. Respond decides every answer; when it is nil
// the scripted results are returned in order and the last one repeats.
type Fake struct {
	Respond func(req Request) Result

	mu     sync.Mutex
	script []Result
	calls  []Request
}

// NewFake returns a provider answering with fn.
func NewFake(fn func(req Request) Result) *Fake {
	return &Fake{Respond: fn}
}

// Scripted returns a provider replaying results.
func Scripted(results ...Result) *Fake {
	return &Fake{script: results}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Generate(ctx context.Context, req Request) Result {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Failure(err)
	}
	if f.Respond != nil {
		return f.Respond(req)
	}
	if len(f.script) == 0 {
		return Failure(ErrEmptyResponse)
	}
	if n > len(f.script) {
		n = len(f.script)
	}
	return f.script[n-1]
}

// Calls returns every request seen so far.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
