// Package transport provides the framed, duplex TCP connection used by the
// controller to talk to game clients and by the controller to talk to
// game-relay nodes. It owns the per-connection write queue and read loop;
// frame interpretation lives in internal/wire.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/udisondev/w3ctl/internal/wire"
)

// Default write queue / timeout constants. Overridden by NewStream's opts.
const (
	DefaultSendQueueSize = 256
	DefaultWriteTimeout  = 5 * time.Second
)

// ErrSendQueueFull is returned by Send when the outbound queue cannot accept
// another frame without blocking.
var ErrSendQueueFull = errors.New("transport: send queue full")

// ErrClosed is returned by Send/Recv once the stream has been closed.
var ErrClosed = errors.New("transport: stream closed")

// Options configures a Stream.
type Options struct {
	SendQueueSize int
	WriteTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = DefaultSendQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Stream wraps one TCP connection with a dedicated write-pump goroutine and
// a blocking frame reader. Every frame queued via Send is delivered in
// order; a slow peer is disconnected rather than allowed to back up memory.
type Stream struct {
	conn net.Conn

	sendCh  chan []byte
	closeCh chan struct{}

	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps conn and starts its write pump. Callers must call Close
// when done; Recv should be driven from a single goroutine.
func NewStream(conn net.Conn, opts Options) *Stream {
	opts = opts.withDefaults()
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	s := &Stream{
		conn:         conn,
		sendCh:       make(chan []byte, opts.SendQueueSize),
		closeCh:      make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
	}
	go s.writePump()
	return s
}

// RemoteAddr returns the underlying connection's remote address.
func (s *Stream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Send encodes p as a frame and queues it for delivery. Non-blocking: if the
// queue is full the stream is closed and ErrSendQueueFull is returned, since
// a backed-up peer is treated as unresponsive rather than buffered
// indefinitely.
func (s *Stream) Send(p wire.Packet) error {
	buf, err := wire.EncodeAsFrame(nil, p)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	select {
	case s.sendCh <- buf:
		return nil
	case <-s.closeCh:
		return ErrClosed
	default:
		slog.Warn("send queue full, dropping peer", "remote", s.conn.RemoteAddr())
		s.Close()
		return ErrSendQueueFull
	}
}

// SendMany queues packets one at a time through Send, in slice order, and
// stops at the first error. It is not atomic: Sends from other goroutines
// may be queued between these packets, and the batch is not guaranteed to
// reach the connection in a single write.
func (s *Stream) SendMany(packets []wire.Packet) error {
	for _, p := range packets {
		if err := s.Send(p); err != nil {
			return err
		}
	}
	return nil
}

// Recv blocks until the next frame arrives, ctx is cancelled, or the
// connection fails. It is the caller's responsibility to decode the frame
// payload into a concrete packet via a wire.Registry.
func (s *Stream) Recv(ctx context.Context) (wire.Frame, error) {
	type result struct {
		frame wire.Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		f, err := wire.ReadFrame(s.conn)
		done <- result{f, err}
	}()

	select {
	case <-ctx.Done():
		s.Close()
		return wire.Frame{}, ctx.Err()
	case r := <-done:
		return r.frame, r.err
	}
}

// Close stops the write pump and closes the underlying connection. Safe to
// call more than once; only the first call's error is returned.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// writePump drains sendCh and writes to conn, batching with net.Buffers when
// more than one frame is queued so a burst of broadcasts costs one syscall.
func (s *Stream) writePump() {
	bufs := make(net.Buffers, 0, 16)

	defer func() {
		for {
			select {
			case <-s.sendCh:
			default:
				return
			}
		}
	}()

	for {
		select {
		case buf, ok := <-s.sendCh:
			if !ok {
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
				return
			}

			queued := len(s.sendCh)
			if queued == 0 {
				if _, err := s.conn.Write(buf); err != nil {
					slog.Debug("stream write failed", "remote", s.conn.RemoteAddr(), "error", err)
					return
				}
				continue
			}

			bufs = bufs[:0]
			bufs = append(bufs, buf)
			for range queued {
				bufs = append(bufs, <-s.sendCh)
			}
			if _, err := bufs.WriteTo(s.conn); err != nil {
				slog.Debug("stream batch write failed", "remote", s.conn.RemoteAddr(), "error", err)
				return
			}

		case <-s.closeCh:
			return
		}
	}
}
