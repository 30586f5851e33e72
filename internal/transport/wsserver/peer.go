package wsserver

import (
	"sync"

	"nhooyr.io/websocket"

	"github.com/park285/cheese-match/pkg/matchproto"
)

// peer is one accepted connection with a bounded FIFO outbound queue.
type peer struct {
	id   string
	ws   *websocket.Conn
	send chan matchproto.Event
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	why  string
}

func newPeer(id string, ws *websocket.Conn, buf int) *peer {
	return &peer{id: id, ws: ws, send: make(chan matchproto.Event, buf), done: make(chan struct{})}
}

func (p *peer) ID() string { return p.id }

// Send enqueues ev. It reports false once the peer is closed so the game drops it.
func (p *peer) Send(ev matchproto.Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- ev:
		return true
	default:
		return false
	}
}

func (p *peer) Close(reason string) {
	p.once.Do(func() {
		p.mu.Lock()
		p.why = reason
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *peer) reason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.why
}
