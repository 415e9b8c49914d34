package manager

import (
	"context"
	"time"

	"inferd/internal/llama"
	"inferd/pkg/types"
)

// TokenStream is a pull-based sequence of generated text fragments.
// *llama.Stream satisfies it; the facade wraps it during model warm-up.
type TokenStream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

// warmupNotice is the human-readable fragment emitted into a stream opened
// while the model is still loading.
const warmupNotice = "[the model is still loading, generation will begin shortly]\n"

// checkReady re-verifies readiness by probing, not by trusting that a process
// handle exists. Returns the probe result on success.
func (m *Manager) checkReady(ctx context.Context) (llama.ProbeResult, error) {
	res := m.client.Probe(ctx)
	if res.Success {
		return res, nil
	}
	if m.proc.Running() {
		return res, serverInitializingError{}
	}
	return res, notRunningError{}
}

// Generate produces a full completion for the message list. The caller gets
// either the whole generated text or an error, never a partial result.
func (m *Manager) Generate(ctx context.Context, messages []types.Message, params types.GenerateParams) (string, error) {
	res, err := m.checkReady(ctx)
	if err != nil {
		return "", err
	}
	if res.Status == llama.StatusInitializing {
		// The server would answer the completion with a 503 anyway; fail
		// softly with the descriptive state instead.
		return "", serverInitializingError{}
	}
	prompt := llama.FormatPrompt(messages)
	return m.client.Complete(ctx, prompt, llama.MergeParams(params))
}

// Stream opens a streaming completion. When the server is still loading the
// model, the returned stream first yields a status fragment, then re-probes
// and continues with real output once the server reports running.
func (m *Manager) Stream(ctx context.Context, messages []types.Message, params types.GenerateParams) (TokenStream, error) {
	res, err := m.checkReady(ctx)
	if err != nil {
		return nil, err
	}
	prompt := llama.FormatPrompt(messages)
	merged := llama.MergeParams(params)
	if res.Status == llama.StatusInitializing {
		return &warmupStream{m: m, ctx: ctx, prompt: prompt, params: merged}, nil
	}
	return m.client.CompleteStream(ctx, prompt, merged)
}

// warmupStream defers the real request until the server finishes loading.
// Phases: emit the notice, poll readiness and open the inner stream, then
// delegate.
type warmupStream struct {
	m      *Manager
	ctx    context.Context
	prompt string
	params llama.CompletionParams

	inner   TokenStream
	noticed bool
	cur     string
	err     error
	done    bool
}

func (w *warmupStream) Next() bool {
	if w.done {
		return false
	}
	if !w.noticed {
		w.noticed = true
		w.cur = warmupNotice
		return true
	}
	if w.inner == nil {
		if !w.openInner() {
			return false
		}
	}
	if w.inner.Next() {
		w.cur = w.inner.Fragment()
		return true
	}
	w.err = w.inner.Err()
	w.done = true
	return false
}

// openInner re-probes with an escalating delay until the server reports
// running, then issues the deferred request.
func (w *warmupStream) openInner() bool {
	delay := time.Second
	for i := 0; i < w.m.cfg.ReadinessPolls; i++ {
		res := w.m.client.Probe(w.ctx)
		switch {
		case res.Success && res.Status == llama.StatusRunning:
			inner, err := w.m.client.CompleteStream(w.ctx, w.prompt, w.params)
			if err != nil {
				w.err = err
				w.done = true
				return false
			}
			w.inner = inner
			return true
		case !res.Success:
			w.err = notRunningError{}
			w.done = true
			return false
		}
		select {
		case <-time.After(delay):
		case <-w.ctx.Done():
			w.err = w.ctx.Err()
			w.done = true
			return false
		}
		if delay < 5*time.Second {
			delay += time.Second
		}
	}
	w.err = serverInitializingError{}
	w.done = true
	return false
}

func (w *warmupStream) Fragment() string { return w.cur }

func (w *warmupStream) Err() error { return w.err }

func (w *warmupStream) Close() error {
	w.done = true
	if w.inner != nil {
		return w.inner.Close()
	}
	return nil
}
