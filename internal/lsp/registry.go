package lsp

import (
	"sync"
	"time"

	"github.com/rkovacs/medit/internal/config"
	"github.com/rkovacs/medit/internal/logger"
)

// OpenDocument is a live buffer the registry replays to a restarted server.
type OpenDocument struct {
	Path       string
	LanguageID string
	Version    int
	Text       string
}

// DocumentSource supplies the current open documents for a language so a
// restarted session sees live content, not the state at first open.
type DocumentSource interface {
	OpenDocuments(languageID string) []OpenDocument
}

// EventKind classifies registry events.
type EventKind int

const (
	EventCrashed EventKind = iota
	EventRestarted
	EventDisabled
)

// Event reports a supervision decision to the UI loop.
type Event struct {
	Kind       EventKind
	LanguageID string
	Err        error
}

// Registry lazily starts one session per language, supervises crashes, and
// restarts crashed servers until the rate limit trips.
type Registry struct {
	cfg     config.LSP
	rootURI string
	timeout time.Duration
	limit   int
	window  time.Duration
	source  DocumentSource
	diagFn  func(PublishDiagnosticsParams)

	mu       sync.Mutex
	sessions map[string]*Session
	crashes  map[string][]time.Time
	disabled map[string]bool
	closed   bool

	events chan Event
}

// NewRegistry builds a registry. source may be nil; restarts then replay
// nothing. diagFn is passed to every session it starts.
func NewRegistry(cfg *config.Config, rootURI string, source DocumentSource, diagFn func(PublishDiagnosticsParams)) *Registry {
	return &Registry{
		cfg:      cfg.LSP,
		rootURI:  rootURI,
		timeout:  time.Duration(cfg.Editor.RequestTimeoutMs) * time.Millisecond,
		limit:    cfg.Editor.RestartLimit,
		window:   time.Duration(cfg.Editor.RestartWindowMs) * time.Millisecond,
		source:   source,
		diagFn:   diagFn,
		sessions: make(map[string]*Session),
		crashes:  make(map[string][]time.Time),
		disabled: make(map[string]bool),
		events:   make(chan Event, 16),
	}
}

// Events delivers supervision events. Sends never block; the channel drops
// on overflow, so it reports state, not a reliable stream.
func (r *Registry) Events() <-chan Event { return r.events }

func (r *Registry) emit(e Event) {
	select {
	case r.events <- e:
	default:
	}
}

// Get returns the running session for languageID, starting one on first
// use. Returns ErrNoServerConfigured when the config has no entry for the
// language and ErrServerDisabled once the crash limit has tripped.
func (r *Registry) Get(languageID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrTransportClosed
	}
	if r.disabled[languageID] {
		return nil, ErrServerDisabled
	}
	if s, ok := r.sessions[languageID]; ok {
		return s, nil
	}
	srv, ok := r.cfg.Servers[languageID]
	if !ok || srv.Command == "" {
		return nil, ErrNoServerConfigured
	}
	return r.startLocked(languageID, srv)
}

// startLocked spawns a session and its crash monitor. Caller holds r.mu.
func (r *Registry) startLocked(languageID string, srv config.Server) (*Session, error) {
	s, err := StartSession(srv, languageID, r.rootURI, r.timeout, r.diagFn)
	if err != nil {
		// A command that cannot even spawn counts against the limit the
		// same way a crash does.
		r.recordCrashLocked(languageID, err)
		return nil, err
	}
	r.sessions[languageID] = s
	go r.monitor(languageID, s)
	return s, nil
}

// recordCrashLocked appends a crash timestamp and disables the language
// when the sliding window fills. Caller holds r.mu. Reports whether the
// language is still allowed to restart.
func (r *Registry) recordCrashLocked(languageID string, err error) bool {
	now := time.Now()
	cutoff := now.Add(-r.window)
	recent := r.crashes[languageID][:0]
	for _, t := range r.crashes[languageID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	r.crashes[languageID] = recent

	if len(recent) >= r.limit {
		r.disabled[languageID] = true
		logger.Warn("lsp server disabled after repeated crashes",
			"language", languageID, "crashes", len(recent), "err", err)
		r.emit(Event{Kind: EventDisabled, LanguageID: languageID, Err: err})
		return false
	}
	return true
}

// monitor waits for an unexpected exit, then restarts the session and
// replays the open documents, unless the crash rate limit trips first.
func (r *Registry) monitor(languageID string, s *Session) {
	err, ok := <-s.Exited()
	if !ok {
		return
	}

	r.mu.Lock()
	if r.closed || r.sessions[languageID] != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, languageID)
	r.emit(Event{Kind: EventCrashed, LanguageID: languageID, Err: err})

	if !r.recordCrashLocked(languageID, err) {
		r.mu.Unlock()
		return
	}
	srv := r.cfg.Servers[languageID]
	fresh, startErr := r.startLocked(languageID, srv)
	r.mu.Unlock()

	if startErr != nil {
		logger.Warn("lsp restart failed", "language", languageID, "err", startErr)
		return
	}
	if r.source != nil {
		for _, doc := range r.source.OpenDocuments(languageID) {
			fresh.DidOpen(doc.Path, doc.LanguageID, doc.Version, doc.Text)
		}
	}
	logger.Info("lsp server restarted", "language", languageID)
	r.emit(Event{Kind: EventRestarted, LanguageID: languageID})
}

// Reset clears the disabled flag and crash history for a language so the
// next Get starts it again.
func (r *Registry) Reset(languageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabled, languageID)
	delete(r.crashes, languageID)
}

// Running reports whether a session exists for the language right now.
func (r *Registry) Running(languageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[languageID]
	return ok
}

// Disabled reports whether the crash limit has tripped for the language.
func (r *Registry) Disabled(languageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled[languageID]
}

// Shutdown stops every session in parallel and blocks until all are down.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Shutdown()
		}(s)
	}
	wg.Wait()
}
