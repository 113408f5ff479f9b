package audio

// Resampler converts PCM16 mono audio from one sample rate to another using
// linear interpolation, carrying interpolation phase and the last source
// sample across calls so successive chunks of the same stream join without a
// discontinuity. Create one per stream direction; not safe for concurrent use.
type Resampler struct {
	from int
	to   int

	prev   int16
	primed bool
	// pos is the position of the next output sample in source-sample units,
	// relative to prev at index 0.
	pos float64
}

// NewResampler returns a resampler for the given rate pair. Rates must be
// positive.
func NewResampler(from, to int) *Resampler {
	return &Resampler{from: from, to: to}
}

// Resample converts a chunk of PCM16 audio. When the source and target rates
// are equal the input is returned unchanged, byte for byte. A trailing odd
// byte is dropped. The returned buffer may be empty when the chunk is too
// short to produce an output sample at the current phase.
func (r *Resampler) Resample(pcm []byte) []byte {
	if r.from == r.to || r.from <= 0 || r.to <= 0 {
		return pcm
	}
	pcm = pcm[:len(pcm)&^1]
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}

	// Assemble the working window: carried sample (if any) plus new samples.
	window := make([]int16, 0, n+1)
	if r.primed {
		window = append(window, r.prev)
	}
	for i := range n {
		window = append(window, int16(pcm[i*2])|int16(pcm[i*2+1])<<8)
	}

	ratio := float64(r.from) / float64(r.to)
	last := len(window) - 1

	out := make([]byte, 0, int(float64(n)/ratio+2)*2)
	for r.pos < float64(last) {
		idx := int(r.pos)
		frac := r.pos - float64(idx)
		s0 := window[idx]
		s1 := window[idx+1]
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out = append(out, byte(v), byte(v>>8))
		r.pos += ratio
	}

	r.prev = window[last]
	r.primed = true
	r.pos -= float64(last)
	return out
}

// Reset discards the carried phase state, as when a stream restarts.
func (r *Resampler) Reset() {
	r.prev = 0
	r.primed = false
	r.pos = 0
}

// ResamplerCache hands out one Resampler per (from, to) rate pair so that a
// bridge reuses the same phase state for every chunk of a given direction.
// Instances are per-bridge and torn down with it; not safe for concurrent use.
type ResamplerCache struct {
	entries map[[2]int]*Resampler
}

// Get returns the cached resampler for the rate pair, creating it on first
// use.
func (c *ResamplerCache) Get(from, to int) *Resampler {
	if c.entries == nil {
		c.entries = make(map[[2]int]*Resampler)
	}
	key := [2]int{from, to}
	r, ok := c.entries[key]
	if !ok {
		r = NewResampler(from, to)
		c.entries[key] = r
	}
	return r
}

// DurationMs returns the playback duration in milliseconds of a PCM16 buffer
// at the given sample rate.
func DurationMs(pcm []byte, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(len(pcm)/2) / float64(rate) * 1000
}
