package kfmt

import (
	"io"

	"kcore/kernel/sync"
)

// earlyBufferCapacity defines the number of slots in the ring buffer that
// captures Printf output before an output sink is attached. It is large
// enough to hold the contents of a standard 80*25 text-mode console.
const earlyBufferCapacity = 2048

// earlyOutput buffers Printf output until SetOutputSink is called. Printf can
// run both in interrupt handlers and in normal context so the buffer, which
// only supports a single producer, is guarded by an IRQ-safe spinlock.
var earlyOutput = sync.NewSpinLock(ringBuffer{sync.NewRingBuffer[byte](earlyBufferCapacity)})

// ringBuffer adapts a byte RingBuffer to the io.Reader and io.Writer
// interfaces. Writing to a full buffer discards the oldest bytes.
type ringBuffer struct {
	rb *sync.RingBuffer[byte]
}

// Write writes len(p) bytes from p to the ring buffer.
func (r ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		r.rb.Write(b)
	}
	return len(p), nil
}

// Read reads up to len(p) buffered bytes into p. It returns io.EOF when the
// buffer is empty.
func (r ringBuffer) Read(p []byte) (int, error) {
	n := 0
	for ; n < len(p); n++ {
		b, ok := r.rb.Read()
		if !ok {
			break
		}
		p[n] = b
	}

	if n == 0 && len(p) != 0 {
		return 0, io.EOF
	}
	return n, nil
}

func writeEarlyOutput(p []byte) {
	g := earlyOutput.LockIRQ()
	_, _ = g.Value().Write(p)
	g.Unlock()
}

func flushEarlyOutput(w io.Writer) {
	g := earlyOutput.LockIRQ()
	_, _ = io.Copy(w, g.Value())
	g.Unlock()
}
