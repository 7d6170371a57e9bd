package lsp

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rkovacs/medit/internal/config"
	"github.com/rkovacs/medit/internal/logger"
)

// State is a session's lifecycle phase.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateTerminated
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting down"
	case StateTerminated:
		return "terminated"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Capability flags negotiated at initialize time.
type Capability uint8

const (
	CapCompletion Capability = 1 << iota
	CapDiagnostics
	CapDefinition
	CapReferences
)

// Session owns one language server process: its lifecycle state machine,
// the negotiated capability set, and the typed feature operations. All
// feature requests are gated first by the per-server config flags, then
// by the negotiated capabilities, then by the Ready state.
type Session struct {
	languageID string
	cfg        config.Server
	rootURI    string
	timeout    time.Duration

	cmd *exec.Cmd
	tr  *Transport

	mu       sync.Mutex
	state    State
	caps     Capability
	triggers []string
	queued   []queuedNote

	exited chan error
	diagFn func(PublishDiagnosticsParams)
}

// queuedNote is a document notification buffered while the session is
// not yet Ready; flushed in arrival order.
type queuedNote struct {
	method string
	params any
}

// StartSession spawns the server process and begins initialization in the
// background. diagFn receives publishDiagnostics pushes; it must not block.
func StartSession(cfg config.Server, languageID, rootURI string, timeout time.Duration, diagFn func(PublishDiagnosticsParams)) (*Session, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	s := &Session{
		languageID: languageID,
		cfg:        cfg,
		rootURI:    rootURI,
		timeout:    timeout,
		cmd:        cmd,
		tr:         NewTransport(stdout, stdin, stdin),
		state:      StateUninitialized,
		exited:     make(chan error, 1),
		diagFn:     diagFn,
	}
	s.tr.OnNotification(s.handleNotification)
	s.tr.Start()

	go s.initialize()
	go s.watch()

	logger.Info("lsp session starting", "language", languageID, "command", cfg.Command)
	return s, nil
}

// LanguageID returns the language this session serves.
func (s *Session) LanguageID() string { return s.languageID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capabilities returns the negotiated capability set.
func (s *Session) Capabilities() Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// TriggerCharacters returns the completion trigger characters: the config
// override when present, otherwise the server-negotiated set.
func (s *Session) TriggerCharacters() []string {
	if len(s.cfg.TriggerCharacters) > 0 {
		return s.cfg.TriggerCharacters
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggers
}

// Exited delivers the process exit error exactly once when the session
// crashes outside an orderly shutdown.
func (s *Session) Exited() <-chan error { return s.exited }

func (s *Session) initialize() {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return
	}
	s.state = StateInitializing
	s.mu.Unlock()

	params := initializeParams{
		ProcessID: os.Getpid(),
		RootURI:   s.rootURI,
		Capabilities: map[string]any{
			"textDocument": map[string]any{
				"publishDiagnostics": map[string]any{"versionSupport": true},
				"completion":         map[string]any{"contextSupport": true},
			},
		},
		ClientInfo: map[string]string{"name": "medit"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var raw json.RawMessage
	if err := s.tr.Call(ctx, "initialize", params, &raw); err != nil {
		logger.Warn("lsp initialize failed", "language", s.languageID, "err", err)
		s.tr.Close()
		return // watch() reports the crash
	}

	caps, triggers := parseCapabilities(raw)

	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return
	}
	s.caps = caps
	s.triggers = triggers
	// The initialized notification and the buffered document
	// notifications go out while the mutex is still held, so nothing
	// sent through notify() can observe Ready and overtake them.
	_ = s.tr.Notify("initialized", struct{}{})
	for _, n := range s.queued {
		_ = s.tr.Notify(n.method, n.params)
	}
	flushed := len(s.queued)
	s.queued = nil
	s.state = StateReady
	s.mu.Unlock()

	logger.Info("lsp session ready", "language", s.languageID, "caps", caps, "queued", flushed)
}

// parseCapabilities extracts the feature flags medit cares about from the
// raw initialize result.
func parseCapabilities(raw json.RawMessage) (Capability, []string) {
	var caps Capability
	var triggers []string

	body := gjson.GetBytes(raw, "capabilities")
	if body.Get("completionProvider").Exists() {
		caps |= CapCompletion
		for _, c := range body.Get("completionProvider.triggerCharacters").Array() {
			triggers = append(triggers, c.String())
		}
	}
	if v := body.Get("definitionProvider"); v.Exists() && (v.Type != gjson.False) {
		caps |= CapDefinition
	}
	if v := body.Get("referencesProvider"); v.Exists() && (v.Type != gjson.False) {
		caps |= CapReferences
	}
	// Publish diagnostics have no server capability flag; a server that
	// syncs documents is assumed to push them.
	if body.Get("textDocumentSync").Exists() || body.Get("diagnosticProvider").Exists() {
		caps |= CapDiagnostics
	}
	return caps, triggers
}

func (s *Session) handleNotification(method string, params json.RawMessage) {
	if method != "textDocument/publishDiagnostics" {
		return
	}
	if !s.cfg.EnableDiagnostics {
		return
	}
	var p PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		logger.Debug("lsp bad publishDiagnostics", "language", s.languageID, "err", err)
		return
	}
	if s.diagFn != nil {
		s.diagFn(p)
	}
}

// watch turns an unexpected process exit into the Crashed state. An exit
// during ShuttingDown/Terminated is an orderly stop, not a crash.
func (s *Session) watch() {
	err := s.cmd.Wait()

	s.mu.Lock()
	orderly := s.state == StateShuttingDown || s.state == StateTerminated
	if orderly {
		s.state = StateTerminated
	} else {
		s.state = StateCrashed
	}
	s.mu.Unlock()

	s.tr.Close()
	if orderly {
		return
	}
	logger.Warn("lsp server exited unexpectedly", "language", s.languageID, "err", err)
	s.exited <- err
}

// notify forwards a document notification now when Ready, queues it while
// the session is still coming up, and drops it once the session is dead.
func (s *Session) notify(method string, params any) {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		_ = s.tr.Notify(method, params)
	case StateUninitialized, StateInitializing:
		s.queued = append(s.queued, queuedNote{method: method, params: params})
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		logger.Debug("lsp notification dropped", "language", s.languageID, "method", method)
	}
}

// DidOpen announces an open document with its full content.
func (s *Session) DidOpen(path, languageID string, version int, text string) {
	s.notify("textDocument/didOpen", DidOpenParams{
		TextDocument: TextDocumentItem{
			URI:        FileURI(path),
			LanguageID: languageID,
			Version:    version,
			Text:       text,
		},
	})
}

// DidChange sends a full-content sync for the given version.
func (s *Session) DidChange(path string, version int, text string) {
	s.notify("textDocument/didChange", DidChangeParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: FileURI(path), Version: version},
		ContentChanges: []ContentChange{{Text: text}},
	})
}

// DidClose announces a closed document.
func (s *Session) DidClose(path string) {
	s.notify("textDocument/didClose", DidCloseParams{
		TextDocument: TextDocumentIdentifier{URI: FileURI(path)},
	})
}

// checkFeature gates a request on the config flag, the negotiated
// capability, and the Ready state, in that order.
func (s *Session) checkFeature(enabled bool, want Capability) error {
	if !enabled {
		return ErrCapabilityUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps&want == 0 && s.state == StateReady {
		return ErrCapabilityUnavailable
	}
	if s.state != StateReady {
		return ErrServerNotReady
	}
	return nil
}

// Completion requests completion items at pos. trigger is the character
// that opened the request, empty for manual invocation.
func (s *Session) Completion(ctx context.Context, path string, pos Position, trigger string) ([]CompletionItem, error) {
	if err := s.checkFeature(s.cfg.EnableCompletion, CapCompletion); err != nil {
		return nil, err
	}
	cctx := &CompletionContext{TriggerKind: TriggerInvoked}
	if trigger != "" {
		cctx = &CompletionContext{TriggerKind: TriggerCharacter, TriggerCharacter: trigger}
	}
	params := CompletionParams{
		TextDocument: TextDocumentIdentifier{URI: FileURI(path)},
		Position:     pos,
		Context:      cctx,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var raw json.RawMessage
	if err := s.tr.Call(ctx, "textDocument/completion", params, &raw); err != nil {
		return nil, err
	}
	return decodeCompletion(raw), nil
}

// Definition resolves the definition locations for the symbol at pos.
func (s *Session) Definition(ctx context.Context, path string, pos Position) ([]Location, error) {
	if err := s.checkFeature(s.cfg.EnableGotoDef, CapDefinition); err != nil {
		return nil, err
	}
	params := TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: FileURI(path)},
		Position:     pos,
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var raw json.RawMessage
	if err := s.tr.Call(ctx, "textDocument/definition", params, &raw); err != nil {
		return nil, err
	}
	return decodeLocations(raw), nil
}

// References lists every reference to the symbol at pos.
func (s *Session) References(ctx context.Context, path string, pos Position) ([]Location, error) {
	if err := s.checkFeature(s.cfg.EnableGotoDef, CapReferences); err != nil {
		return nil, err
	}
	params := ReferenceParams{
		TextDocument: TextDocumentIdentifier{URI: FileURI(path)},
		Position:     pos,
		Context:      ReferenceContext{IncludeDeclaration: s.cfg.IncludeDeclaration},
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var raw json.RawMessage
	if err := s.tr.Call(ctx, "textDocument/references", params, &raw); err != nil {
		return nil, err
	}
	return decodeLocations(raw), nil
}

// Shutdown performs the orderly shutdown/exit sequence. Idempotent; safe
// to call from any state. In-flight requests drain to ErrTransportClosed.
func (s *Session) Shutdown() {
	s.mu.Lock()
	switch s.state {
	case StateShuttingDown, StateTerminated:
		s.mu.Unlock()
		return
	case StateCrashed:
		s.state = StateTerminated
		s.mu.Unlock()
		return
	}
	s.state = StateShuttingDown
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.tr.Call(ctx, "shutdown", nil, nil)
	_ = s.tr.Notify("exit", nil)
	s.tr.Close()

	// The process gets a moment to honor exit before being killed.
	killed := make(chan struct{})
	go func() {
		select {
		case <-time.After(2 * time.Second):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
		case <-killed:
		}
	}()

	for s.State() != StateTerminated {
		time.Sleep(10 * time.Millisecond)
	}
	close(killed)
	logger.Info("lsp session stopped", "language", s.languageID)
}
