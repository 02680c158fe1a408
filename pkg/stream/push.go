package stream

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// EventType distinguishes the events of a push source.
type EventType int

const (
	EventData EventType = iota
	EventEnd
	EventError
)

// Event is one notification from a push source.
type Event struct {
	Type EventType
	Data []byte
	Err  error
}

// Emitter is a push-style source. Subscribe registers handler and returns the
// function that removes it. Handlers may be called from any goroutine, and
// may be called before Subscribe returns.
type Emitter interface {
	Subscribe(handler func(Event)) (unsubscribe func())
}

// ErrSourceClosed is returned by reads after Close.
var ErrSourceClosed = errors.New("stream source closed")

var errPushFailed = errors.New("stream source failed")

// FromEmitter adapts a push source to io.ReadCloser. Events are buffered so
// the emitter is never blocked by a slow reader. Close removes the
// subscription.
func FromEmitter(em Emitter) io.ReadCloser {
	r := &pushReader{notify: make(chan struct{}, 1)}
	r.unsubscribe = em.Subscribe(r.handle)
	return r
}

type pushReader struct {
	notify      chan struct{}
	unsubscribe func()
	closeOnce   sync.Once

	mu     sync.Mutex
	buf    bytes.Buffer
	err    error
	closed bool
}

func (r *pushReader) handle(ev Event) {
	r.mu.Lock()
	if r.closed || r.err != nil {
		r.mu.Unlock()
		return
	}
	switch ev.Type {
	case EventData:
		r.buf.Write(ev.Data)
	case EventEnd:
		r.err = io.EOF
	case EventError:
		r.err = ev.Err
		if r.err == nil {
			r.err = errPushFailed
		}
	}
	r.mu.Unlock()
	r.signal()
}

func (r *pushReader) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *pushReader) Read(p []byte) (int, error) {
	for {
		r.mu.Lock()
		switch {
		case r.closed:
			r.mu.Unlock()
			return 0, ErrSourceClosed
		case r.buf.Len() > 0:
			n, _ := r.buf.Read(p)
			r.mu.Unlock()
			return n, nil
		case r.err != nil:
			err := r.err
			r.mu.Unlock()
			return 0, err
		}
		r.mu.Unlock()
		<-r.notify
	}
}

func (r *pushReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.closeOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
	})
	r.signal()
	return nil
}
