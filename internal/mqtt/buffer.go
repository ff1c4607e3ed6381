package mqtt

import "go.uber.org/zap"

// bufferedMsg is a serialized message held for replay after a reconnect.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent messages published while the broker was
// unreachable. The caller holds the client lock.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write slot
	count   int
	dropped int // overwritten since the last drain
	log     *zap.SugaredLogger
}

func newRingBuffer(capacity int, log *zap.SugaredLogger) *ringBuffer {
	return &ringBuffer{buf: make([]bufferedMsg, capacity), log: log}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	n := len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % n
	if r.count < n {
		r.count++
		return
	}
	// Full: the slot just written held the oldest message.
	if r.dropped == 0 {
		r.log.Warnw("mqtt buffer full, dropping oldest", "capacity", n)
	}
	r.dropped++
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	n := len(r.buf)
	out := make([]bufferedMsg, 0, r.count)
	for i := r.head - r.count; i < r.head; i++ {
		out = append(out, r.buf[(i+n)%n])
	}
	if r.dropped > 0 {
		r.log.Warnw("mqtt buffer overflowed while offline", "dropped", r.dropped)
	}
	r.head, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
