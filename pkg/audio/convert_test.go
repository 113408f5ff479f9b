package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/phonio-ai/phonio/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// sineMulaw8k produces ms milliseconds of a μ-law encoded sine at the carrier
// rate.
func sinePCM(freq float64, rate, ms int, amplitude float64) []byte {
	n := rate * ms / 1000
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return samplesToBytes(samples)
}

func TestCarrierToModel_DurationPreserved(t *testing.T) {
	// 100 ms of μ-law at 8 kHz is 800 bytes.
	mulaw := bytes.Repeat([]byte{0xFF}, 800)

	var tc audio.Transcoder
	pcm := tc.CarrierToModel(mulaw, 16000)

	got := audio.DurationMs(pcm, 16000)
	if math.Abs(got-100) > 5 {
		t.Fatalf("duration after upsample: got %.2f ms, want 100±5 ms", got)
	}
}

func TestModelToCarrier_Downsamples(t *testing.T) {
	pcm := sinePCM(440, 24000, 60, 8000)

	var tc audio.Transcoder
	mulaw := tc.ModelToCarrier(pcm, 24000)

	// 60 ms at 8 kHz is 480 μ-law bytes; the streaming resampler may hold
	// back a sample or two at the chunk edge.
	if got := len(mulaw); got < 470 || got > 481 {
		t.Fatalf("μ-law length: got %d, want ≈480", got)
	}
}

func TestModelToCarrier_OddByteCount(t *testing.T) {
	pcm := append(sinePCM(200, 8000, 10, 4000), 0x01)

	var tc audio.Transcoder
	mulaw := tc.ModelToCarrier(pcm, 8000)
	if got := len(mulaw); got != 80 {
		t.Fatalf("μ-law length with trailing odd byte: got %d, want 80", got)
	}
}

func TestTranscoder_SineSurvivesRoundTrip(t *testing.T) {
	// A 440 Hz sine pushed carrier→model and back must still be 440 Hz.
	var tc audio.Transcoder
	mulaw := audio.PCM16ToMulaw(sinePCM(440, 8000, 100, 8000))
	up := tc.CarrierToModel(mulaw, 16000)

	peak := dominantFrequency(bytesToSamples(up), 16000)
	if peak < 435 || peak > 445 {
		t.Fatalf("dominant frequency after transcode: got %d Hz, want 440±5 Hz", peak)
	}
}

// dominantFrequency scans 100–1000 Hz with a Goertzel filter and returns the
// frequency with the highest magnitude.
func dominantFrequency(samples []int16, rate int) int {
	best, bestMag := 0, -1.0
	for freq := 100; freq <= 1000; freq++ {
		mag := goertzel(samples, rate, float64(freq))
		if mag > bestMag {
			best, bestMag = freq, mag
		}
	}
	return best
}

func goertzel(samples []int16, rate int, freq float64) float64 {
	w := 2 * math.Pi * freq / float64(rate)
	coeff := 2 * math.Cos(w)
	var s0, s1, s2 float64
	for _, x := range samples {
		s0 = float64(x) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}
