package speedtest

import (
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// meter is the only mutable state shared across the workers of one
// throughput phase: an atomically incremented byte total and a
// single-writer deadline signal. Workers check the deadline only between
// discrete transfers, so an in-flight request always runs to completion.
type meter struct {
	total     int64
	done      chan struct{}
	closeOnce sync.Once
}

func newMeter() *meter {
	return &meter{done: make(chan struct{})}
}

// add credits n transferred bytes. Safe under any interleaving.
func (m *meter) add(n int64) {
	atomic.AddInt64(&m.total, n)
}

// bytes returns the running total.
func (m *meter) bytes() int64 {
	return atomic.LoadInt64(&m.total)
}

// expire sets the deadline signal. Idempotent, single logical writer.
func (m *meter) expire() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// expired reports whether the deadline has passed.
func (m *meter) expired() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

var blackHolePool = sync.Pool{
	New: func() any {
		b := make([]byte, 8192)
		return &b
	},
}

// drain reads r until EOF, crediting every byte actually read to the
// meter. Declared content length is never trusted.
func (m *meter) drain(r io.Reader) (int64, error) {
	bufP := blackHolePool.Get().(*[]byte)
	defer blackHolePool.Put(bufP)

	var total int64
	for {
		n, err := r.Read(*bufP)
		m.add(int64(n))
		total += int64(n)
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}

const payloadBlockSize = 1024 * 1024

var (
	payloadOnce  sync.Once
	payloadBlock []byte
)

// payload returns the shared random, non-compressible block. It is
// generated exactly once; upload requests slice it per request so payload
// generation never skews the measured rate.
func payload() []byte {
	payloadOnce.Do(func() {
		payloadBlock = make([]byte, payloadBlockSize)
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		rnd.Read(payloadBlock)
	})
	return payloadBlock
}

// payloadReader streams size bytes of the shared random block, crediting
// bytes to the meter as the transport consumes them.
type payloadReader struct {
	m *meter
	n int
}

func (m *meter) newPayloadReader(size int) *payloadReader {
	return &payloadReader{m: m, n: size}
}

func (r *payloadReader) Read(b []byte) (int, error) {
	if r.n <= 0 {
		return 0, io.EOF
	}
	block := payload()
	n := r.n
	if n > len(block) {
		n = len(block)
	}
	if n > len(b) {
		n = len(b)
	}
	n = copy(b, block[:n])
	r.n -= n
	r.m.add(int64(n))
	return n, nil
}
