package audio

import (
	"errors"
	"sync"
	"time"
)

// Sink is an audio output device for PCM16 mono chunks. Submit is
// asynchronous: each chunk's audible completion is reported through the
// callback registered at Open, in submission order, from a goroutine owned
// by the sink.
type Sink interface {
	// Open prepares the device for the given PCM format. onDone may be nil
	// when the caller does not need completion signals.
	Open(sampleRate, channels, bitDepth int, onDone func()) error
	// Submit queues one chunk for playback and returns without waiting for
	// it to play out.
	Submit(chunk []int16) error
	// SetGain sets the output gain, 0.0 (silent) to 1.0 (full scale).
	SetGain(gain float64) error
	// Reset discards any queued but unplayed chunks.
	Reset() error
	Close() error
}

// pacer serializes chunk completions for sinks whose backend cannot report
// them itself: each queued chunk is held for its play-out time before the
// done callback fires, so completions arrive in submission order at the
// audible rate.
type pacer struct {
	sampleRate int
	onDone     func()

	mu      sync.Mutex
	pending []int // chunk lengths in samples
	closed  bool
	wake    chan struct{}
}

func newPacer(sampleRate int, onDone func()) *pacer {
	p := &pacer{
		sampleRate: sampleRate,
		onDone:     onDone,
		wake:       make(chan struct{}, 1),
	}
	go p.run()
	return p
}

func (p *pacer) add(samples int) {
	p.mu.Lock()
	p.pending = append(p.pending, samples)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// reset drops chunks that have not started playing out yet.
func (p *pacer) reset() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

func (p *pacer) close() {
	p.mu.Lock()
	p.closed = true
	p.pending = nil
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *pacer) run() {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		var samples int
		if len(p.pending) > 0 {
			samples = p.pending[0]
			p.pending = p.pending[1:]
		}
		p.mu.Unlock()

		if samples == 0 {
			<-p.wake
			continue
		}

		time.Sleep(time.Duration(samples) * time.Second / time.Duration(p.sampleRate))

		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}
		if p.onDone != nil {
			p.onDone()
		}
	}
}

// NullSink discards all audio while simulating device timing, so the caller
// sees the same completion cadence a real device would produce.
type NullSink struct {
	mu   sync.Mutex
	pace *pacer
	gain float64
}

func NewNullSink() *NullSink {
	return &NullSink{gain: 1.0}
}

func (n *NullSink) Open(sampleRate, channels, bitDepth int, onDone func()) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pace != nil {
		return errors.New("sink already open")
	}
	n.pace = newPacer(sampleRate, onDone)
	return nil
}

func (n *NullSink) Submit(chunk []int16) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pace == nil {
		return errors.New("sink not open")
	}
	n.pace.add(len(chunk))
	return nil
}

func (n *NullSink) SetGain(gain float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.gain = gain
	return nil
}

func (n *NullSink) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pace != nil {
		n.pace.reset()
	}
	return nil
}

func (n *NullSink) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pace != nil {
		n.pace.close()
		n.pace = nil
	}
	return nil
}

// BufferSink captures submitted chunks for inspection in tests. Completions
// never fire on their own; tests drive them with Complete.
type BufferSink struct {
	mu     sync.Mutex
	onDone func()
	chunks [][]int16
	gain   float64
	resets int
	open   bool
}

func NewBufferSink() *BufferSink {
	return &BufferSink{gain: 1.0}
}

func (b *BufferSink) Open(sampleRate, channels, bitDepth int, onDone func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		return errors.New("sink already open")
	}
	b.open = true
	b.onDone = onDone
	return nil
}

func (b *BufferSink) Submit(chunk []int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return errors.New("sink not open")
	}
	c := make([]int16, len(chunk))
	copy(c, chunk)
	b.chunks = append(b.chunks, c)
	return nil
}

func (b *BufferSink) SetGain(gain float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gain = gain
	return nil
}

func (b *BufferSink) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resets++
	return nil
}

func (b *BufferSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = false
	return nil
}

// Complete fires n completion callbacks, as if n submitted chunks had
// finished playing.
func (b *BufferSink) Complete(n int) {
	b.mu.Lock()
	onDone := b.onDone
	b.mu.Unlock()

	if onDone == nil {
		return
	}
	for i := 0; i < n; i++ {
		onDone()
	}
}

// Chunks returns the submitted chunks in order.
func (b *BufferSink) Chunks() [][]int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([][]int16, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Gain returns the last gain applied with SetGain.
func (b *BufferSink) Gain() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gain
}

// Resets returns how many times Reset has been called.
func (b *BufferSink) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}
