// Package audio implements the codec layer between the telephony carrier and
// the real-time model: ITU-T G.711 μ-law companding, stateful resampling
// between the 8/16/24 kHz rates the two legs use, and RMS-based silence
// detection for the external transcription path.
//
// All PCM16 buffers are little-endian signed 16-bit mono samples. Inputs whose
// length is not a multiple of 2 have the trailing byte silently dropped, as is
// usual telephony practice.
package audio

// mulawBias and mulawClip are the standard G.711 encoder constants.
const (
	mulawBias = 0x84
	mulawClip = 32635
)

// mulawDecodeTable maps each μ-law code byte to its linear PCM16 sample.
var mulawDecodeTable [256]int16

func init() {
	for i := range mulawDecodeTable {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := ((int16(mantissa) << 3) + mulawBias) << exponent
		sample -= mulawBias
		if u&0x80 != 0 {
			sample = -sample
		}
		mulawDecodeTable[i] = sample
	}
}

// MulawToPCM16 expands 8-bit μ-law samples to linear PCM16. The output is
// exactly twice the input length.
func MulawToPCM16(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, b := range in {
		s := mulawDecodeTable[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// PCM16ToMulaw compresses linear PCM16 samples to 8-bit μ-law. A trailing odd
// byte is dropped.
func PCM16ToMulaw(in []byte) []byte {
	n := len(in) / 2
	out := make([]byte, n)
	for i := range n {
		s := int16(in[i*2]) | int16(in[i*2+1])<<8
		out[i] = encodeMulawSample(s)
	}
	return out
}

func encodeMulawSample(s int16) byte {
	var sign byte
	v := int32(s)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > mulawClip {
		v = mulawClip
	}
	v += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); v&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(v>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}
