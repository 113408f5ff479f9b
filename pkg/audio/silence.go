package audio

import "math"

// Silence detection defaults, tuned for 16-bit telephony speech. All three are
// overridable through configuration.
const (
	// DefaultSilenceRMS is the RMS energy below which a chunk counts as
	// silent. 16-bit full scale is 32767; 500 corresponds to room noise.
	DefaultSilenceRMS = 500.0

	// DefaultSilenceMs is how long silence must persist, after speech was
	// heard, before the accumulated utterance is flushed.
	DefaultSilenceMs = 500

	// DefaultMinBufferMs is the minimum utterance length worth transcribing.
	DefaultMinBufferMs = 300
)

// SilenceDetector segments a PCM16 stream into utterances by watching for a
// sustained drop in RMS energy after speech has been heard. It is used by the
// external transcription strategy; the model providers do their own voice
// activity detection. Not safe for concurrent use.
type SilenceDetector struct {
	// Threshold is the RMS level separating speech from silence.
	Threshold float64

	// SampleRate of the PCM16 stream in Hz.
	SampleRate int

	// SilenceMs is the consecutive-silence window that ends an utterance.
	SilenceMs int

	silentBytes int
	sawSpeech   bool
}

// NewSilenceDetector returns a detector with the package defaults for any
// zero-valued field.
func NewSilenceDetector(sampleRate int) *SilenceDetector {
	return &SilenceDetector{
		Threshold:  DefaultSilenceRMS,
		SampleRate: sampleRate,
		SilenceMs:  DefaultSilenceMs,
	}
}

// Observe feeds one PCM16 chunk and reports whether an utterance boundary was
// just reached: speech was previously heard and silence has now persisted for
// at least SilenceMs. The caller is expected to flush its accumulated buffer
// and call Reset when Observe returns true.
func (d *SilenceDetector) Observe(pcm []byte) bool {
	if RMS(pcm) < d.Threshold {
		if !d.sawSpeech {
			return false
		}
		d.silentBytes += len(pcm)
		return d.silentBytes >= d.silenceWindowBytes()
	}
	d.sawSpeech = true
	d.silentBytes = 0
	return false
}

// SawSpeech reports whether any non-silent audio has been observed since the
// last Reset.
func (d *SilenceDetector) SawSpeech() bool {
	return d.sawSpeech
}

// Reset clears the detector state for the next utterance.
func (d *SilenceDetector) Reset() {
	d.silentBytes = 0
	d.sawSpeech = false
}

func (d *SilenceDetector) silenceWindowBytes() int {
	// 2 bytes per sample.
	return d.SampleRate * d.SilenceMs / 1000 * 2
}

// RMS computes the root-mean-square energy of a PCM16 buffer. An empty (or
// sub-sample) buffer has zero energy.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
