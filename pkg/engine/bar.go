package engine

// buildBar synthesizes one bar of PCM16 audio for the given tempo and meter.
// It returns the bar buffer and the beat length in samples,
// ⌊sampleRate·60/bpm⌋ with a practical minimum of 1.
//
// A meter below 2 produces a single repeating beat of the main sound. A
// meter of 2 or more produces that many beat-length segments with the accent
// sound on beat 0 and the main sound on the rest. Each segment holds its
// source truncated to the beat length, zero-padded when shorter.
func buildBar(bpm, meter, sampleRate int, main, accent []int16) ([]int16, int) {
	beatLength := sampleRate * 60 / bpm
	if beatLength < 1 {
		beatLength = 1
	}

	if meter < 2 {
		bar := make([]int16, beatLength)
		copy(bar, main)
		return bar, beatLength
	}

	bar := make([]int16, beatLength*meter)
	for i := 0; i < meter; i++ {
		src := main
		if i == 0 {
			src = accent
		}
		copy(bar[i*beatLength:(i+1)*beatLength], src)
	}
	return bar, beatLength
}
