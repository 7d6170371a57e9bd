package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rkovacs/medit/internal/logger"
)

// NotificationHandler receives unsolicited server notifications.
type NotificationHandler func(method string, params json.RawMessage)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Transport speaks Content-Length framed JSON-RPC 2.0 over one server
// process's stdio. Requests may be pipelined; responses are matched to
// callers by id, in any arrival order, and delivered exactly once.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *response
	handler NotificationHandler

	nextID atomic.Int64
	closed atomic.Bool
	done   chan struct{}
}

// NewTransport wraps the given pipes. closer is closed (once) when the
// transport shuts down, typically the process stdin.
func NewTransport(r io.Reader, w io.Writer, closer io.Closer) *Transport {
	return &Transport{
		reader:  bufio.NewReaderSize(r, 64*1024),
		writer:  w,
		closer:  closer,
		pending: make(map[int64]chan *response),
		done:    make(chan struct{}),
	}
}

// Start launches the read loop.
func (t *Transport) Start() {
	go t.readLoop()
}

// OnNotification registers the handler for server notifications. Must be
// called before Start.
func (t *Transport) OnNotification(h NotificationHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Done is closed when the transport fails or is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Closed reports whether the transport is no longer usable.
func (t *Transport) Closed() bool {
	return t.closed.Load()
}

// Close tears the transport down. Every pending call fails with
// ErrTransportClosed. Idempotent.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	close(t.done)

	// Pending callers are woken through done; drop the map so late
	// responses have nowhere to land.
	t.mu.Lock()
	t.pending = make(map[int64]chan *response)
	t.mu.Unlock()

	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

// Call sends a request and blocks until its response, ctx expiry, or
// transport closure.
func (t *Transport) Call(ctx context.Context, method string, params, result any) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	id := t.nextID.Add(1)
	ch := make(chan *response, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.send(&request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrRequestTimeout
		}
		return ctx.Err()
	case <-t.done:
		return ErrTransportClosed
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification. No response is expected.
func (t *Transport) Notify(method string, params any) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return t.send(&request{JSONRPC: "2.0", Method: method, Params: params})
}

func (t *Transport) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.writer, header); err != nil {
		t.fail()
		return ErrTransportClosed
	}
	if _, err := t.writer.Write(payload); err != nil {
		t.fail()
		return ErrTransportClosed
	}
	return nil
}

// fail marks the transport broken without racing Close.
func (t *Transport) fail() {
	if t.closed.Swap(true) {
		return
	}
	close(t.done)
	t.mu.Lock()
	t.pending = make(map[int64]chan *response)
	t.mu.Unlock()
	if t.closer != nil {
		_ = t.closer.Close()
	}
}

func (t *Transport) readLoop() {
	for {
		msg, err := readMessage(t.reader)
		if err != nil {
			if !t.closed.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				logger.Debug("lsp read failed", "err", err)
			}
			t.fail()
			return
		}
		t.dispatch(msg)
		if t.closed.Load() {
			return
		}
	}
}

func (t *Transport) dispatch(data json.RawMessage) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	// A body that does not parse means the stream framing can no longer
	// be trusted; the transport is failed, not skipped past.
	if err := json.Unmarshal(data, &probe); err != nil {
		logger.Debug("lsp malformed message", "err", err)
		t.fail()
		return
	}

	if probe.ID != nil && probe.Method == "" {
		resp := &response{ID: *probe.ID, Result: probe.Result, Error: probe.Error}
		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- resp
		}
		return
	}

	if probe.Method != "" && probe.ID == nil {
		t.mu.Lock()
		h := t.handler
		t.mu.Unlock()
		if h != nil {
			var notif struct {
				Params json.RawMessage `json:"params"`
			}
			_ = json.Unmarshal(data, &notif)
			h(probe.Method, notif.Params)
		}
	}
	// Server-to-client requests are not part of the surface medit uses.
}

func readMessage(r *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.ToLower(strings.TrimSpace(parts[0])) == "content-length" {
			if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
				length = n
			}
		}
	}
	if length < 0 {
		return nil, errors.New("missing content-length")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
