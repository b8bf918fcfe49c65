package bridge

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Request is an inbound message waiting for the host tick.
type Request struct {
	// ID correlates the request in logs and replies.
	ID      string
	Payload string
	// Connection is the generation of the connection the message arrived on.
	Connection uint64
	ReceivedAt time.Time
}

// pendingQueue is a bounded FIFO shared by the receive goroutine (push) and
// the host tick (drain).
type pendingQueue struct {
	mu    sync.Mutex
	q     *queue.Queue
	limit int
}

func newPendingQueue(limit int) *pendingQueue {
	if limit <= 0 {
		limit = 1
	}
	return &pendingQueue{
		q:     queue.New(),
		limit: limit,
	}
}

func (p *pendingQueue) push(req Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.q.Length() >= p.limit {
		return false
	}
	p.q.Add(req)
	return true
}

// drain removes every queued request in arrival order.
func (p *pendingQueue) drain() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]Request, 0, n)
	for p.q.Length() > 0 {
		out = append(out, p.q.Remove().(Request))
	}
	return out
}

func (p *pendingQueue) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}

func (p *pendingQueue) clear() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.q.Length()
	for p.q.Length() > 0 {
		p.q.Remove()
	}
	return n
}
