// Package engine implements the metronome core: it synthesizes a bar of
// click sounds and streams it beat by beat to an audio sink, reporting each
// beat to a listener when it finishes audible playback.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"metronome/pkg/audio"
)

// settleDelay is how long tempo, meter and sound changes let the sink
// quiesce between the implicit pause and the resume.
const settleDelay = 100 * time.Millisecond

// TickListener receives the current beat index each time a beat finishes
// audible playback. It is called synchronously from the sink's completion
// goroutine, so it must not block.
type TickListener func(beat int)

// Config carries the construction parameters for a Metronome.
type Config struct {
	MainSound   []byte  // PCM16 little-endian mono, required
	AccentSound []byte  // optional; the main sound is reused when absent
	BPM         int     // beats per minute, > 0
	Meter       int     // beats per bar; below 2 disables the accent
	Volume      float64 // 0.0 to 1.0
	SampleRate  int     // Hz, > 0
}

// Metronome streams a repeating bar of click sounds to an audio sink.
//
// Three goroutines touch it: the caller issuing transport operations, the
// scheduler loop started by Play, and the sink's completion goroutine.
// paramMu guards the bar buffer and playback parameters, tickMu guards the
// completion bookkeeping, and the playing flag is the single atomic the
// scheduler polls.
type Metronome struct {
	sink       audio.Sink
	sampleRate int

	playing atomic.Bool

	// ctlMu serializes transport operations (Play, Pause, SetBPM, ...).
	ctlMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}

	// paramMu guards the parameters below and every bar-buffer read,
	// including chunk extraction in the scheduler loop.
	paramMu     sync.Mutex
	bpm         int
	meter       int
	volume      float64
	sounds      *soundStore
	bar         []int16
	beatLength  int
	writeCursor int

	// tickMu guards completion bookkeeping, separate from paramMu so the
	// completion callback never contends with chunk extraction.
	tickMu      sync.Mutex
	playCursor  int
	currentTick int
	listener    TickListener
}

// New opens the sink and builds the initial bar buffer. It fails with
// ErrInvalidFormat on malformed sound data, ErrOutOfRange on a bad volume
// and ErrDevice when the sink cannot be opened.
func New(cfg Config, sink audio.Sink) (*Metronome, error) {
	if cfg.BPM <= 0 {
		return nil, fmt.Errorf("bpm must be positive, got %d", cfg.BPM)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Volume < 0.0 || cfg.Volume > 1.0 {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, cfg.Volume)
	}

	sounds, err := newSoundStore(cfg.MainSound, cfg.AccentSound)
	if err != nil {
		return nil, err
	}

	m := &Metronome{
		sink:       sink,
		sampleRate: cfg.SampleRate,
		bpm:        cfg.BPM,
		meter:      cfg.Meter,
		volume:     cfg.Volume,
		sounds:     sounds,
	}

	if err := sink.Open(cfg.SampleRate, 1, 16, m.onChunkDone); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}
	if err := sink.SetGain(cfg.Volume); err != nil {
		sink.Close()
		return nil, fmt.Errorf("%w: %v", ErrDevice, err)
	}

	m.paramMu.Lock()
	m.rebuildBarLocked()
	m.paramMu.Unlock()

	return m, nil
}

// Close stops playback and releases the sink.
func (m *Metronome) Close() error {
	m.Stop()
	return m.sink.Close()
}

// Play starts the scheduler goroutine. Calling Play while already playing is
// a no-op.
func (m *Metronome) Play() {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()
	m.play()
}

// Pause stops playback synchronously: when it returns the scheduler
// goroutine has exited and the cursors and beat index are back at zero.
// Calling Pause while stopped is a no-op.
func (m *Metronome) Pause() {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()
	m.pause()
}

// Stop halts playback and discards any queued but unplayed audio. It resets
// position state the same way Pause does; keeping one stop policy is simpler
// than preserving a resume position no caller can use.
func (m *Metronome) Stop() {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()
	m.pause()
}

// SetBPM changes the tempo. A value equal to the current tempo is a no-op;
// values below 1 are ignored. When playing, the change pauses playback,
// applies, and resumes after a short settle delay.
func (m *Metronome) SetBPM(bpm int) {
	if bpm < 1 {
		return
	}
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()

	m.paramMu.Lock()
	same := m.bpm == bpm
	m.paramMu.Unlock()
	if same {
		return
	}

	m.applyChange(func() {
		m.bpm = bpm
	})
}

// SetTimeSignature changes the beats per bar. Values below 2 select the
// unaccented single-beat mode. A value equal to the current meter is a
// no-op.
func (m *Metronome) SetTimeSignature(meter int) {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()

	m.paramMu.Lock()
	same := m.meter == meter
	m.paramMu.Unlock()
	if same {
		return
	}

	m.applyChange(func() {
		m.meter = meter
	})
}

// SetSounds replaces the click sounds. An empty argument leaves the
// corresponding sound untouched; both empty is a no-op. Malformed data fails
// with ErrInvalidFormat before playback is disturbed.
func (m *Metronome) SetSounds(mainBytes, accentBytes []byte) error {
	if len(mainBytes) == 0 && len(accentBytes) == 0 {
		return nil
	}

	// Validate before pausing so a bad file never interrupts the beat.
	if len(mainBytes) > 0 {
		if _, err := SamplesFromBytes(mainBytes); err != nil {
			return fmt.Errorf("main sound: %w", err)
		}
	}
	if len(accentBytes) > 0 {
		if _, err := SamplesFromBytes(accentBytes); err != nil {
			return fmt.Errorf("accent sound: %w", err)
		}
	}

	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()

	m.applyChange(func() {
		m.sounds.setSounds(mainBytes, accentBytes)
	})
	return nil
}

// SetVolume applies a new output gain immediately, without touching the bar
// buffer or interrupting playback. Values outside [0.0, 1.0] fail with
// ErrOutOfRange and leave the current volume in place.
func (m *Metronome) SetVolume(v float64) error {
	if v < 0.0 || v > 1.0 {
		return fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	if err := m.sink.SetGain(v); err != nil {
		return err
	}
	m.paramMu.Lock()
	m.volume = v
	m.paramMu.Unlock()
	return nil
}

// Volume returns the current output gain in [0.0, 1.0].
func (m *Metronome) Volume() float64 {
	m.paramMu.Lock()
	defer m.paramMu.Unlock()
	return m.volume
}

// IsPlaying reports whether the metronome is running.
func (m *Metronome) IsPlaying() bool {
	return m.playing.Load()
}

// SetTickListener registers the beat callback. A nil listener disables
// notifications.
func (m *Metronome) SetTickListener(fn TickListener) {
	m.tickMu.Lock()
	m.listener = fn
	m.tickMu.Unlock()
}

// play starts playback. Caller holds ctlMu.
func (m *Metronome) play() {
	if m.playing.Swap(true) {
		return
	}

	// Parameters may have changed while stopped.
	m.paramMu.Lock()
	m.rebuildBarLocked()
	m.paramMu.Unlock()

	m.sink.Reset()

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(m.stopCh, m.doneCh)
}

// pause stops playback and resets position state. Caller holds ctlMu.
func (m *Metronome) pause() {
	if !m.playing.Swap(false) {
		return
	}

	close(m.stopCh)
	m.sink.Reset()
	<-m.doneCh

	m.paramMu.Lock()
	m.writeCursor = 0
	m.paramMu.Unlock()

	m.tickMu.Lock()
	m.playCursor = 0
	m.currentTick = 0
	m.tickMu.Unlock()
}

// applyChange runs a parameter mutation with the pause/settle/resume dance:
// one sanctioned audible gap instead of an in-flight retune. Caller holds
// ctlMu.
func (m *Metronome) applyChange(mutate func()) {
	wasPlaying := m.playing.Load()
	if wasPlaying {
		m.pause()
	}

	m.paramMu.Lock()
	mutate()
	m.rebuildBarLocked()
	m.paramMu.Unlock()

	if wasPlaying {
		time.Sleep(settleDelay)
		m.play()
	}
}

// rebuildBarLocked synthesizes the bar buffer for the current parameters.
// Caller holds paramMu.
func (m *Metronome) rebuildBarLocked() {
	m.bar, m.beatLength = buildBar(m.bpm, m.meter, m.sampleRate, m.sounds.main, m.sounds.accent)
}

// run is the scheduler loop: slice one beat of samples from the bar buffer,
// hand it to the sink, then wait out the beat period. Wake deadlines are
// anchored to the loop start time so per-iteration overhead does not
// accumulate as drift over long runs.
func (m *Metronome) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer func() {
		if r := recover(); r != nil {
			m.playing.Store(false)
			panic(r)
		}
	}()

	start := time.Now()
	var elapsed time.Duration

	for m.playing.Load() {
		chunk, period := m.nextChunk()

		// A rejected chunk is dropped; playback is best-effort and the
		// beat grid must not stall.
		m.sink.Submit(chunk)

		elapsed += period
		select {
		case <-stopCh:
			return
		case <-time.After(time.Until(start.Add(elapsed))):
		}
	}
}

// nextChunk copies the next beat-length slice out of the bar buffer,
// wrapping at the end, and advances the write cursor. It returns the slice
// and the beat period it covers.
func (m *Metronome) nextChunk() ([]int16, time.Duration) {
	m.paramMu.Lock()
	defer m.paramMu.Unlock()

	chunk := make([]int16, m.beatLength)
	offset := m.writeCursor % len(m.bar)
	n := copy(chunk, m.bar[offset:])
	if n < m.beatLength {
		copy(chunk[n:], m.bar[:m.beatLength-n])
	}
	m.writeCursor += m.beatLength

	return chunk, time.Duration(m.beatLength) * time.Second / time.Duration(m.sampleRate)
}

// onChunkDone runs on the sink's completion goroutine each time a submitted
// chunk finishes audible playback. Ticks follow completion, not submission,
// so listeners hear beat boundaries where the audience does.
func (m *Metronome) onChunkDone() {
	if !m.playing.Load() {
		return
	}

	m.paramMu.Lock()
	beatLength := m.beatLength
	meter := m.meter
	m.paramMu.Unlock()

	m.tickMu.Lock()
	m.playCursor += beatLength
	if meter < 2 {
		m.currentTick = 0
	} else {
		m.currentTick++
		if m.currentTick >= meter {
			m.currentTick = 0
		}
	}
	tick := m.currentTick
	listener := m.listener
	m.tickMu.Unlock()

	// Delivered outside tickMu so a listener may call back into the
	// transport surface. Ordering holds: completions arrive from a single
	// sink goroutine.
	if listener != nil {
		listener(tick)
	}
}
