package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"metronome/pkg/audio"
	"metronome/pkg/engine"
)

var (
	bpm      = flag.Int("bpm", 120, "Tempo in beats per minute")
	meter    = flag.Int("meter", 4, "Beats per bar (below 2 disables the accent)")
	rate     = flag.Int("rate", 44100, "Sample rate (Hz)")
	volume   = flag.Float64("volume", 1.0, "Volume (0.0 to 1.0)")
	duration = flag.Duration("duration", 0, "Stop after this long (0 = run until Ctrl+C)")
	click    = flag.String("click", "", "WAV file for the plain click (synthesized tone if empty)")
	accent   = flag.String("accent", "", "WAV file for the accented click (synthesized tone if empty)")
	output   = flag.String("output", "oto", "Output backend (oto, wav, null)")
	wavFile  = flag.String("wav", "metronome.wav", "Output WAV file (when using wav output)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Metronome - steady click track with an accented downbeat\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	// Click sounds: decode the given WAV files, or fall back to short
	// synthesized tones with the accent a fifth higher.
	mainBytes, err := clickBytes(*click, *rate, 880)
	if err != nil {
		log.Fatalf("Failed to load click sound: %v", err)
	}
	var accentBytes []byte
	if *accent != "" || *click == "" {
		accentBytes, err = clickBytes(*accent, *rate, 1320)
		if err != nil {
			log.Fatalf("Failed to load accent sound: %v", err)
		}
	}

	var sink audio.Sink
	switch *output {
	case "oto":
		sink = audio.NewOtoSink()
	case "wav":
		sink = NewWAVSink(*wavFile)
	case "null":
		sink = audio.NewNullSink()
	default:
		log.Fatalf("Unknown output backend: %s", *output)
	}

	m, err := engine.New(engine.Config{
		MainSound:   mainBytes,
		AccentSound: accentBytes,
		BPM:         *bpm,
		Meter:       *meter,
		Volume:      *volume,
		SampleRate:  *rate,
	}, sink)
	if err != nil {
		log.Fatalf("Failed to create metronome: %v", err)
	}
	defer m.Close()

	m.SetTickListener(func(beat int) {
		fmt.Printf("\r%s  %d BPM ", beatLine(beat, *meter), *bpm)
	})

	fmt.Printf("Playing %d BPM", *bpm)
	if *meter >= 2 {
		fmt.Printf(", %d beats per bar", *meter)
	}
	fmt.Printf("... (Press Ctrl+C to stop)\n\n")

	m.Play()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	select {
	case <-sigChan:
		fmt.Printf("\n\nStopping...\n")
	case <-timeout:
		fmt.Printf("\n\nDone.\n")
	}

	m.Stop()
}

// clickBytes returns PCM16 mono bytes for one click: decoded from a WAV file
// when a path is given, otherwise a synthesized tone burst.
func clickBytes(path string, sampleRate int, freq float64) ([]byte, error) {
	if path == "" {
		return synthesizeClick(sampleRate, freq), nil
	}
	return loadWAV(path, sampleRate)
}

// loadWAV decodes a WAV file into PCM16 mono bytes at the target sample
// rate, resampling and downmixing as needed.
func loadWAV(path string, sampleRate int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	defer streamer.Close()

	var s beep.Streamer = streamer
	if format.SampleRate != beep.SampleRate(sampleRate) {
		s = beep.Resample(4, format.SampleRate, beep.SampleRate(sampleRate), s)
	}

	var out []byte
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			v := (buf[i][0] + buf[i][1]) / 2
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			sample := int16(v * 32767)
			out = append(out, byte(sample), byte(sample>>8))
		}
		if !ok {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("decode %s: no samples", path)
	}
	return out, nil
}

// synthesizeClick renders a 30ms decaying sine burst as PCM16 mono bytes.
func synthesizeClick(sampleRate int, freq float64) []byte {
	n := sampleRate * 30 / 1000
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		v := math.Sin(2*math.Pi*freq*t) * math.Exp(-t*120) * 0.8
		sample := int16(v * 32767)
		out = append(out, byte(sample), byte(sample>>8))
	}
	return out
}

// beatLine renders the bar position, marking the beat now sounding.
func beatLine(beat, meter int) string {
	if meter < 2 {
		return "●"
	}
	marks := make([]string, meter)
	for i := range marks {
		if i == beat {
			marks[i] = "●"
		} else {
			marks[i] = "○"
		}
	}
	return strings.Join(marks, " ")
}
