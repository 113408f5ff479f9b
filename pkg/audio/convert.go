package audio

import (
	"log/slog"
	"sync"
)

// CarrierSampleRate is the fixed sample rate of the telephony leg. Carriers
// deliver and accept 8 kHz μ-law exclusively.
const CarrierSampleRate = 8000

// Transcoder converts audio between the carrier's μ-law 8 kHz format and the
// model's PCM16 format at its negotiated rate. It owns a ResamplerCache so
// each direction keeps its interpolation phase across successive chunks.
// Create one per bridge; not safe for concurrent use from multiple goroutines
// on the same direction.
type Transcoder struct {
	cache ResamplerCache

	warnedOdd sync.Once
}

// CarrierToModel expands a μ-law chunk to PCM16 and resamples it from 8 kHz
// to the model's input rate.
func (t *Transcoder) CarrierToModel(mulaw []byte, modelRate int) []byte {
	pcm := MulawToPCM16(mulaw)
	return t.cache.Get(CarrierSampleRate, modelRate).Resample(pcm)
}

// ModelToCarrier resamples a PCM16 chunk from the model's output rate down to
// 8 kHz and compresses it to μ-law. A chunk with an odd byte count has its
// trailing byte dropped; the first occurrence is logged.
func (t *Transcoder) ModelToCarrier(pcm []byte, modelRate int) []byte {
	if len(pcm)%2 != 0 {
		t.warnedOdd.Do(func() {
			slog.Warn("transcoder: odd byte count in PCM16 chunk, dropping trailing byte",
				"bytes", len(pcm),
				"sampleRate", modelRate,
			)
		})
		pcm = pcm[:len(pcm)&^1]
	}
	down := t.cache.Get(modelRate, CarrierSampleRate).Resample(pcm)
	return PCM16ToMulaw(down)
}

// Reset discards all cached resampler phase state, as when the media stream
// restarts mid-call.
func (t *Transcoder) Reset() {
	for _, r := range t.cache.entries {
		r.Reset()
	}
}
