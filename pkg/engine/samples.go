package engine

import "fmt"

// SamplesFromBytes converts raw little-endian PCM16 mono bytes into a sample
// array. The input must be non-empty and even-length (two bytes per sample),
// otherwise ErrInvalidFormat is returned.
func SamplesFromBytes(data []byte) ([]int16, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFormat, len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}
	return samples, nil
}

// soundStore holds the two click sounds as immutable PCM16 mono arrays.
// Until an accent sound is supplied, accent aliases main (same backing
// array, not a copy).
type soundStore struct {
	main   []int16
	accent []int16
}

func newSoundStore(mainBytes, accentBytes []byte) (*soundStore, error) {
	main, err := SamplesFromBytes(mainBytes)
	if err != nil {
		return nil, fmt.Errorf("main sound: %w", err)
	}
	accent := main
	if len(accentBytes) > 0 {
		accent, err = SamplesFromBytes(accentBytes)
		if err != nil {
			return nil, fmt.Errorf("accent sound: %w", err)
		}
	}
	return &soundStore{main: main, accent: accent}, nil
}

// setSounds replaces either or both sounds. An empty argument leaves the
// corresponding stored array untouched; both empty is a no-op. On error
// neither array is replaced.
func (s *soundStore) setSounds(mainBytes, accentBytes []byte) error {
	var main, accent []int16
	var err error
	if len(mainBytes) > 0 {
		main, err = SamplesFromBytes(mainBytes)
		if err != nil {
			return fmt.Errorf("main sound: %w", err)
		}
	}
	if len(accentBytes) > 0 {
		accent, err = SamplesFromBytes(accentBytes)
		if err != nil {
			return fmt.Errorf("accent sound: %w", err)
		}
	}
	if main != nil {
		s.main = main
	}
	if accent != nil {
		s.accent = accent
	}
	return nil
}
