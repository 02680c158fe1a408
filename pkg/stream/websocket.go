package stream

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketEmitter turns the messages of a websocket connection into push
// events. Each message is one chunk; a newline is appended when missing so
// frames from consecutive messages never run together.
type WebsocketEmitter struct {
	conn *websocket.Conn
}

// NewWebsocketEmitter wraps conn. The emitter owns conn and closes it on
// unsubscribe.
func NewWebsocketEmitter(conn *websocket.Conn) *WebsocketEmitter {
	return &WebsocketEmitter{conn: conn}
}

// Subscribe starts the read loop. Only one subscription per connection is
// supported.
func (e *WebsocketEmitter) Subscribe(handler func(Event)) func() {
	stop := make(chan struct{})
	go func() {
		for {
			_, msg, err := e.conn.ReadMessage()
			if err != nil {
				select {
				case <-stop:
					return
				default:
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					handler(Event{Type: EventEnd})
				} else {
					handler(Event{Type: EventError, Err: err})
				}
				return
			}
			if len(msg) == 0 || msg[len(msg)-1] != '\n' {
				msg = append(msg, '\n')
			}
			handler(Event{Type: EventData, Data: msg})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			_ = e.conn.Close()
		})
	}
}
