package audio

import "sync/atomic"

// DefaultChannelCapacity holds enough blocks to absorb scheduling jitter
// between the two callbacks without adding much latency.
const DefaultChannelCapacity = 4

// Channel is a bounded single-producer single-consumer queue of fixed-length
// audio blocks. Blocks are copied into preallocated slots, so neither side
// allocates and no slice is shared between the producer and the consumer.
//
// Only the capture callback may call TryPush and only the playback callback
// may call TryPop. Drain may be called once both callbacks are stopped.
type Channel struct {
	slots    [][]float32
	blockLen int

	// head is owned by the consumer, tail by the producer.
	head atomic.Uint64
	tail atomic.Uint64
}

// NewChannel allocates a channel of capacity blocks of blockLen samples.
func NewChannel(capacity, blockLen int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	slots := make([][]float32, capacity)
	for i := range slots {
		slots[i] = make([]float32, blockLen)
	}
	return &Channel{slots: slots, blockLen: blockLen}
}

// TryPush copies block into the queue. It returns false and discards block
// when the queue is full; it never blocks. A short block is padded with
// silence and a long one truncated to the block length.
func (c *Channel) TryPush(block []float32) bool {
	tail := c.tail.Load()
	if tail-c.head.Load() >= uint64(len(c.slots)) {
		return false
	}
	slot := c.slots[tail%uint64(len(c.slots))]
	n := copy(slot, block)
	clear(slot[n:])
	c.tail.Store(tail + 1)
	return true
}

// TryPop copies the oldest block into dst and removes it from the queue. It
// returns false when the queue is empty, leaving dst untouched.
func (c *Channel) TryPop(dst []float32) bool {
	head := c.head.Load()
	if head == c.tail.Load() {
		return false
	}
	copy(dst, c.slots[head%uint64(len(c.slots))])
	c.head.Store(head + 1)
	return true
}

// Len reports the number of queued blocks.
func (c *Channel) Len() int {
	tail := c.tail.Load()
	head := c.head.Load()
	if head > tail {
		return 0
	}
	return int(tail - head)
}

// Cap reports the channel capacity in blocks.
func (c *Channel) Cap() int { return len(c.slots) }

// BlockLen reports the number of samples per block.
func (c *Channel) BlockLen() int { return c.blockLen }

// Drain discards every queued block.
func (c *Channel) Drain() {
	c.head.Store(c.tail.Load())
}
