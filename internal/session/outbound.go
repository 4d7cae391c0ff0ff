package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/udisondev/w3ctl/internal/wire"
)

// DefaultQueueDepth is the per-connection outbound queue's capacity.
const DefaultQueueDepth = 256

// OutboundItem is either a packet to write or a request to close the
// connection with reason. Ping/heartbeat/start/token packets and
// disconnects are Critical and are never dropped by backpressure.
type OutboundItem struct {
	Packet     wire.Packet
	Disconnect bool
	Reason     string
}

var neverDrop = map[uint8]bool{
	wire.TypePing:             true,
	wire.TypeGameStarting:     true,
	wire.TypeGameStartReject:  true,
	wire.TypeGamePlayerToken:  true,
	wire.TypeClientDisconnect: true,
}

// Critical reports whether item must never be evicted by drop-oldest
// backpressure.
func (i OutboundItem) Critical() bool {
	if i.Disconnect {
		return true
	}
	return neverDrop[i.Packet.TypeID()]
}

// errQueueClosed is returned by Enqueue once the queue has been closed.
var errQueueClosed = fmt.Errorf("session: outbound queue closed")

// OutboundQueue is a bounded, backpressured per-connection packet queue. A
// full queue evicts its oldest non-Critical entry to make room rather than
// blocking the actor enqueuing it.
type OutboundQueue struct {
	playerID PlayerID

	mu     sync.Mutex
	buf    []OutboundItem
	notify chan struct{}
	closed bool
}

// NewOutboundQueue creates an empty queue for playerID, used only in log
// messages when an eviction happens.
func NewOutboundQueue(playerID PlayerID) *OutboundQueue {
	return &OutboundQueue{
		playerID: playerID,
		buf:      make([]OutboundItem, 0, DefaultQueueDepth),
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue pushes item, evicting the oldest non-Critical queued item if the
// queue is at capacity.
func (q *OutboundQueue) Enqueue(item OutboundItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errQueueClosed
	}

	if len(q.buf) >= DefaultQueueDepth {
		if evicted := q.evictOldestNonCritical(); !evicted && !item.Critical() {
			// Nothing evictable and the new item itself isn't critical: drop it.
			slog.Warn("outbound queue full, dropping packet", "player_id", q.playerID)
			return nil
		}
	}

	q.buf = append(q.buf, item)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *OutboundQueue) evictOldestNonCritical() bool {
	for i, it := range q.buf {
		if it.Critical() {
			continue
		}
		slog.Warn("outbound queue full, evicting oldest packet", "player_id", q.playerID)
		q.buf = append(q.buf[:i], q.buf[i+1:]...)
		return true
	}
	return false
}

// Recv blocks until an item is available or closed is signaled, returning
// (item, true) or (zero, false) once the queue is drained and closed.
func (q *OutboundQueue) Recv(closed <-chan struct{}) (OutboundItem, bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			item := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return item, true
		}
		done := q.closed
		q.mu.Unlock()
		if done {
			return OutboundItem{}, false
		}

		select {
		case <-q.notify:
		case <-closed:
			q.mu.Lock()
			if len(q.buf) == 0 {
				q.mu.Unlock()
				return OutboundItem{}, false
			}
			q.mu.Unlock()
		}
	}
}

// Close marks the queue closed; queued items already pushed are still
// drained by Recv before it reports empty.
func (q *OutboundQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
