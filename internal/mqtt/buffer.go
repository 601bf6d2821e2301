package mqtt

import "log/slog"

// DefaultBufferSize is how many messages are kept while the broker is unreachable.
const DefaultBufferSize = 64

// pendingMsg is a serialized MQTT message waiting for the broker.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages held while disconnected.
// The oldest message is overwritten when full. Not safe for concurrent use.
type ringBuffer struct {
	msgs    []pendingMsg
	next    int
	n       int
	dropped int // overwritten since the last drain
	logger  *slog.Logger
}

func newRingBuffer(capacity int, logger *slog.Logger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		msgs:   make([]pendingMsg, capacity),
		logger: logger,
	}
}

func (r *ringBuffer) push(msg pendingMsg) {
	size := len(r.msgs)
	r.msgs[r.next] = msg
	r.next = (r.next + 1) % size
	if r.n < size {
		r.n++
		return
	}
	if r.dropped == 0 {
		r.logger.Warn("buffer full, dropping oldest", "capacity", size)
	}
	r.dropped++
}

// drainAll returns the held messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []pendingMsg {
	if r.n == 0 {
		return nil
	}
	size := len(r.msgs)
	out := make([]pendingMsg, 0, r.n)
	for i := r.next - r.n; i < r.next; i++ {
		out = append(out, r.msgs[(i+size)%size])
	}
	if r.dropped > 0 {
		r.logger.Warn("messages dropped while disconnected", "dropped", r.dropped)
	}
	r.next, r.n, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.n
}
