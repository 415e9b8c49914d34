package supervisor

import (
	"regexp"
	"strings"
	"sync"
)

// Readiness matcher predicates. The upstream server emits no structured
// readiness signal; these substrings are the observed log vocabulary across
// server builds. Matching is case-insensitive.
var (
	listeningMarkers = []string{
		"server listening",
		"http server listening",
		"listening on",
	}
	modelLoadedMarkers = []string{
		"model loaded",
	}
	slotsIdleMarkers = []string{
		"all slots are idle",
		"slots idle",
		"main loop",
	}
	rejectionMarkers = []string{
		"invalid argument",
		"unrecognized option",
		"unknown argument",
		"error while handling argument",
	}

	flagPattern = regexp.MustCompile(`--[A-Za-z0-9][A-Za-z0-9_-]*`)
)

// argRejection is one parsed argument-rejection log line.
type argRejection struct {
	flag string
	line string
}

// logWatch accumulates readiness signals from the process log stream. It is
// fed concurrently from the stdout and stderr scanner goroutines.
type logWatch struct {
	mu          sync.Mutex
	listening   bool
	modelLoaded bool
	slotsIdle   bool

	readyOnce  sync.Once
	rejectOnce sync.Once
	ready      chan struct{}
	rejected   chan argRejection
}

func newLogWatch() *logWatch {
	return &logWatch{
		ready:    make(chan struct{}),
		rejected: make(chan argRejection, 1),
	}
}

func containsAny(lower string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// observe scans one log line for readiness and rejection signals. An explicit
// all-slots-idle line alone constitutes full readiness; otherwise listening
// plus model-loaded is required.
func (w *logWatch) observe(line string) {
	lower := strings.ToLower(line)
	if containsAny(lower, rejectionMarkers) {
		flag := flagPattern.FindString(line)
		w.rejectOnce.Do(func() {
			w.rejected <- argRejection{flag: flag, line: strings.TrimSpace(line)}
		})
		return
	}
	w.mu.Lock()
	if containsAny(lower, listeningMarkers) {
		w.listening = true
	}
	if containsAny(lower, modelLoadedMarkers) {
		w.modelLoaded = true
	}
	if containsAny(lower, slotsIdleMarkers) {
		w.slotsIdle = true
	}
	full := w.slotsIdle || (w.listening && w.modelLoaded)
	w.mu.Unlock()
	if full {
		w.readyOnce.Do(func() { close(w.ready) })
	}
}

// partial reports whether at least one readiness signal was observed. Used
// for lenient completion when the startup timer fires on a server that is
// merely slow to emit its final log line.
func (w *logWatch) partial() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.listening || w.modelLoaded || w.slotsIdle
}
