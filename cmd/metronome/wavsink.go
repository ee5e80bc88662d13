package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

// WAVSink renders the metronome stream to a WAV file in real time.
// Completions are paced at the audible rate so the engine behaves exactly as
// it does against a device.
type WAVSink struct {
	filename   string
	sampleRate int

	mu      sync.Mutex
	file    *os.File
	written int64
	onDone  func()
	pending chan int
	quit    chan struct{}
}

func NewWAVSink(filename string) *WAVSink {
	return &WAVSink{filename: filename}
}

func (w *WAVSink) Open(sampleRate, channels, bitDepth int, onDone func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return fmt.Errorf("sink already open")
	}

	file, err := os.Create(w.filename)
	if err != nil {
		return err
	}

	// RIFF/WAVE header; sizes are patched on Close.
	header := make([]byte, 44)
	copy(header[0:4], []byte("RIFF"))
	copy(header[8:12], []byte("WAVE"))
	copy(header[12:16], []byte("fmt "))
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*bitDepth/8))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*bitDepth/8))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitDepth))
	copy(header[36:40], []byte("data"))

	if _, err := file.Write(header); err != nil {
		file.Close()
		return err
	}

	w.file = file
	w.sampleRate = sampleRate
	w.onDone = onDone
	w.pending = make(chan int, 64)
	w.quit = make(chan struct{})
	go w.completer()

	return nil
}

func (w *WAVSink) Submit(chunk []int16) error {
	w.mu.Lock()
	if w.file == nil {
		w.mu.Unlock()
		return fmt.Errorf("sink not open")
	}

	bytes := make([]byte, len(chunk)*2)
	for i, sample := range chunk {
		bytes[i*2] = byte(sample)
		bytes[i*2+1] = byte(sample >> 8)
	}
	n, err := w.file.Write(bytes)
	w.written += int64(n)
	pending := w.pending
	w.mu.Unlock()

	if err != nil {
		return err
	}
	select {
	case pending <- len(chunk):
	default:
	}
	return nil
}

// SetGain is accepted but not applied; the file keeps full-scale samples.
func (w *WAVSink) SetGain(gain float64) error {
	return nil
}

func (w *WAVSink) Reset() error {
	w.mu.Lock()
	pending := w.pending
	w.mu.Unlock()

	if pending == nil {
		return nil
	}
	for {
		select {
		case <-pending:
		default:
			return nil
		}
	}
}

func (w *WAVSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	close(w.quit)

	// Patch the header with the final sizes.
	w.file.Seek(4, 0)
	binary.Write(w.file, binary.LittleEndian, uint32(w.written+36))
	w.file.Seek(40, 0)
	binary.Write(w.file, binary.LittleEndian, uint32(w.written))

	err := w.file.Close()
	w.file = nil
	return err
}

// completer fires one completion per submitted chunk after its play-out
// time has elapsed.
func (w *WAVSink) completer() {
	for {
		select {
		case <-w.quit:
			return
		case samples := <-w.pending:
			time.Sleep(time.Duration(samples) * time.Second / time.Duration(w.sampleRate))
			select {
			case <-w.quit:
				return
			default:
			}
			if w.onDone != nil {
				w.onDone()
			}
		}
	}
}
