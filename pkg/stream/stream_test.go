package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one chunk per Read and then err (io.EOF by default).
type chunkReader struct {
	chunks [][]byte
	err    error

	mu     sync.Mutex
	closed bool
}

func chunks(parts ...string) *chunkReader {
	r := &chunkReader{}
	for _, p := range parts {
		r.chunks = append(r.chunks, []byte(p))
	}
	return r
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *chunkReader) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func collect(t *testing.T, src io.ReadCloser) ([]string, string, error) {
	t.Helper()
	var deltas []string
	text, err := NewIngester(nil).Ingest(context.Background(), src, func(d string) {
		deltas = append(deltas, d)
	})
	return deltas, text, err
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Frame
		ok      bool
		wantErr bool
	}{
		{name: "text", line: `data: {"text":"Hi"}`, want: Frame{Text: "Hi"}, ok: true},
		{name: "crlf", line: "data: {\"text\":\"Hi\"}\r", want: Frame{Text: "Hi"}, ok: true},
		{name: "no text field", line: `data: {"type":"ping"}`, want: Frame{}, ok: true},
		{name: "sentinel", line: "data: [DONE]", want: Frame{Done: true}, ok: true},
		{name: "sentinel padded", line: "data:  [DONE] ", want: Frame{Done: true}, ok: true},
		{name: "malformed", line: "data: {not json", ok: true, wantErr: true},
		{name: "comment", line: ": keep-alive", ok: false},
		{name: "event line", line: "event: message", ok: false},
		{name: "blank", line: "", ok: false},
		{name: "no space after colon", line: `data:{"text":"x"}`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	line, err := FormatFrame("a \"quoted\"\nline")
	require.NoError(t, err)
	f, ok, err := ParseLine(strings.TrimSuffix(line, "\n"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a \"quoted\"\nline", f.Text)

	f, _, _ = ParseLine(strings.TrimSuffix(FormatDone(), "\n"))
	assert.True(t, f.Done)
}

func TestIngestDeltasAndFinalText(t *testing.T) {
	src := chunks(
		"data: {\"text\":\"Hel\"}\n",
		"data: {\"text\":\"lo\"}\n",
		"data: [DONE]\n",
	)

	deltas, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", text)
	assert.True(t, src.isClosed())
}

func TestIngestReassemblesSplitMultibyte(t *testing.T) {
	frame := []byte("data: {\"text\":\"café 世\"}\n")
	cut := strings.Index(string(frame), "é") + 1 // inside the two-byte é

	src := &chunkReader{chunks: [][]byte{frame[:cut], frame[cut:], []byte("data: [DONE]\n")}}
	deltas, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"café 世"}, deltas)
	assert.Equal(t, "café 世", text)
}

func TestIngestFrameSplitAcrossChunks(t *testing.T) {
	src := chunks("data: {\"te", "xt\":\"A\"}\ndata: {\"text\"", ":\"B\"}\n", "data: [DO", "NE]\n")
	deltas, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, deltas)
	assert.Equal(t, "AB", text)
}

func TestIngestSkipsMalformedFrame(t *testing.T) {
	src := chunks(
		"data: {\"text\":\"one \"}\n",
		"data: {not json\n",
		"data: {\"text\":\"two\"}\n",
		"data: [DONE]\n",
	)
	deltas, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"one ", "two"}, deltas)
	assert.Equal(t, "one two", text)
}

func TestIngestIgnoresEmptyTextAndOtherLines(t *testing.T) {
	src := chunks(": ping\n\nevent: message\ndata: {\"text\":\"\"}\ndata: {\"text\":\"x\"}\n\ndata: [DONE]\n")
	deltas, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, deltas)
	assert.Equal(t, "x", text)
}

func TestIngestStopsAtSentinel(t *testing.T) {
	src := chunks("data: {\"text\":\"a\"}\ndata: [DONE]\ndata: {\"text\":\"late\"}\n")
	deltas, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deltas)
	assert.Equal(t, "a", text)
}

func TestIngestEndWithoutSentinel(t *testing.T) {
	src := chunks("data: {\"text\":\"partial\"}\n", "data: {\"text\":\" tail\"}")
	deltas, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"partial", " tail"}, deltas)
	assert.Equal(t, "partial tail", text)
	assert.True(t, src.isClosed())
}

func TestIngestTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	src := chunks("data: {\"text\":\"so far\"}\n")
	src.err = boom

	_, text, err := collect(t, src)
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "so far", text)
	assert.True(t, src.isClosed())
}

func TestIngestCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan string, 1)
	go func() {
		_, _ = pw.Write([]byte("data: {\"text\":\"first\"}\n"))
	}()

	var result string
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err = NewIngester(nil).Ingest(ctx, pr, func(d string) {
			got <- d
		})
	}()

	assert.Equal(t, "first", <-got)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingest did not stop after cancellation")
	}
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, "first", result)

	// The source was released: writers now fail.
	_, werr := pw.Write([]byte("data: [DONE]\n"))
	assert.ErrorIs(t, werr, io.ErrClosedPipe)
}

// fakeEmitter records subscriptions and lets the test push events.
type fakeEmitter struct {
	mu           sync.Mutex
	handler      func(Event)
	subscribed   bool
	unsubscribed bool
	replay       []Event
}

func (f *fakeEmitter) Subscribe(h func(Event)) func() {
	f.mu.Lock()
	f.handler = h
	f.subscribed = true
	replay := f.replay
	f.mu.Unlock()
	for _, ev := range replay {
		h(ev)
	}
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.mu.Unlock()
	}
}

func (f *fakeEmitter) emit(ev Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(ev)
}

func (f *fakeEmitter) wasUnsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func TestPushSourceSynchronousReplay(t *testing.T) {
	em := &fakeEmitter{replay: []Event{
		{Type: EventData, Data: []byte("data: {\"text\":\"Hel\"}\n")},
		{Type: EventData, Data: []byte("data: {\"text\":\"lo\"}\n")},
		{Type: EventData, Data: []byte("data: [DONE]\n")},
	}}

	deltas, text, err := collect(t, FromEmitter(em))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", text)
	assert.True(t, em.wasUnsubscribed())
}

func TestPushSourceEndAndError(t *testing.T) {
	em := &fakeEmitter{}
	src := FromEmitter(em)
	go func() {
		em.emit(Event{Type: EventData, Data: []byte("data: {\"text\":\"x\"}\n")})
		em.emit(Event{Type: EventEnd})
		em.emit(Event{Type: EventData, Data: []byte("data: {\"text\":\"ignored\"}\n")})
	}()
	_, text, err := collect(t, src)
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	assert.True(t, em.wasUnsubscribed())

	em = &fakeEmitter{}
	src = FromEmitter(em)
	boom := errors.New("socket hang up")
	go em.emit(Event{Type: EventError, Err: boom})
	_, _, err = collect(t, src)
	assert.ErrorIs(t, err, boom)
	assert.True(t, em.wasUnsubscribed())
}

func TestPushSourceCancellationUnsubscribes(t *testing.T) {
	em := &fakeEmitter{}
	src := FromEmitter(em)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewIngester(nil).Ingest(ctx, src, nil)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, em.wasUnsubscribed())
}

func TestTaskDeltasAndWait(t *testing.T) {
	src := chunks("data: {\"text\":\"a\"}\n", "data: {\"text\":\"b\"}\n", "data: [DONE]\n")
	task := NewIngester(nil).Start(context.Background(), src)

	var got []string
	for d := range task.All() {
		got = append(got, d)
	}
	text, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, "ab", text)
}

func TestTaskCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	task := NewIngester(nil).Start(context.Background(), pr)

	go func() { _, _ = pw.Write([]byte("data: {\"text\":\"x\"}\n")) }()
	assert.Equal(t, "x", <-task.Deltas())

	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish after Cancel")
	}
	_, err := task.Wait()
	assert.ErrorIs(t, err, ErrCanceled)

	_, ok := <-task.Deltas()
	assert.False(t, ok, "deltas channel is closed")
}

func TestWebsocketEmitter(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`data: {"text":"web"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("data: {\"text\":\"socket\"}\n"))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// Wait for the client to close its side.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	deltas, text, err := collect(t, FromEmitter(NewWebsocketEmitter(conn)))
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "socket"}, deltas)
	assert.Equal(t, "websocket", text)
}
