package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	// Global Oto context singleton: oto allows one context per process, so
	// it is shared between sinks and kept alive for reuse.
	globalOtoMutex sync.Mutex
	globalContext  *oto.Context
)

// OtoSink plays chunks on the system audio device through Oto v3. Chunks are
// streamed to a single device player over a pipe; completion callbacks are
// paced at the audible rate, in submission order.
type OtoSink struct {
	mu         sync.Mutex
	player     *oto.Player
	writer     *io.PipeWriter
	reader     *io.PipeReader
	pace       *pacer
	sampleRate int
	closed     bool
}

// NewOtoSink creates an unopened Oto sink.
func NewOtoSink() *OtoSink {
	return &OtoSink{}
}

// Open creates (or reuses) the Oto context and starts the device player.
func (s *OtoSink) Open(sampleRate, channels, bitDepth int, onDone func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return fmt.Errorf("sink already open")
	}
	if bitDepth != 16 {
		return fmt.Errorf("unsupported bit depth %d, want 16", bitDepth)
	}

	s.sampleRate = sampleRate
	s.reader, s.writer = io.Pipe()

	globalOtoMutex.Lock()
	if globalContext == nil {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		context, ready, err := oto.NewContext(op)
		if err != nil {
			globalOtoMutex.Unlock()
			return fmt.Errorf("failed to create oto context: %w", err)
		}
		<-ready
		globalContext = context
	}
	context := globalContext
	globalOtoMutex.Unlock()

	s.player = context.NewPlayer(s.reader)
	s.player.Play()
	s.pace = newPacer(sampleRate, onDone)
	s.closed = false

	return nil
}

// Submit writes one chunk to the device stream.
func (s *OtoSink) Submit(chunk []int16) error {
	s.mu.Lock()
	if s.closed || s.writer == nil {
		s.mu.Unlock()
		return fmt.Errorf("sink not open")
	}
	writer := s.writer
	pace := s.pace
	s.mu.Unlock()

	// Convert int16 to bytes (little-endian)
	bytes := make([]byte, len(chunk)*2)
	for i, sample := range chunk {
		bytes[i*2] = byte(sample)
		bytes[i*2+1] = byte(sample >> 8)
	}

	if _, err := writer.Write(bytes); err != nil {
		return err
	}
	pace.add(len(chunk))
	return nil
}

// SetGain adjusts the device player's volume.
func (s *OtoSink) SetGain(gain float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return fmt.Errorf("sink not open")
	}
	s.player.SetVolume(gain)
	return nil
}

// Reset stops reporting completions for chunks that have not started their
// play-out interval. Audio already handed to the device keeps draining; Oto
// has no way to pull it back.
func (s *OtoSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pace != nil {
		s.pace.reset()
	}
	return nil
}

// Close tears down the player and the stream.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.pace != nil {
		s.pace.close()
		s.pace = nil
	}

	// Close writer first to signal EOF to the player
	if s.writer != nil {
		s.writer.Close()
		s.writer = nil
	}

	// Give the device buffer a moment to drain
	time.Sleep(100 * time.Millisecond)

	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}

	// Keep the global context alive for reuse.
	return nil
}
