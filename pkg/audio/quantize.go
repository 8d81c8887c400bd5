// Package audio provides PCM helpers for the voxdraft pipelines: float/int16
// quantization, fixed-size framing of the capture stream, and mono resampling
// to the 16kHz wire rate.
package audio

// Wire format constants. The duplex channel carries signed 16-bit
// little-endian mono PCM at 16kHz; outbound capture frames are exactly 20ms.
const (
	WireSampleRate   = 16000
	FrameSamples     = 320 // 20ms at 16kHz
	BytesPerSample   = 2
	FrameBytes       = FrameSamples * BytesPerSample
)

// QuantizeSample converts one floating sample in [-1, 1] to a signed 16-bit
// integer. The input is clamped first. Positive values scale by 32767 and
// negative values by 32768; the asymmetry is required for bit-exact parity
// with the reference decoder.
func QuantizeSample(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Quantize converts a float sample slice to little-endian int16 PCM bytes
// using QuantizeSample per sample.
func Quantize(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := QuantizeSample(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Dequantize converts little-endian int16 PCM bytes to float samples by
// dividing each sample by 32768. A trailing odd byte is ignored.
func Dequantize(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}

// Samples16 decodes little-endian int16 PCM bytes into int16 samples.
// A trailing odd byte is ignored.
func Samples16(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// Bytes16 encodes int16 samples as little-endian PCM bytes.
func Bytes16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, v := range samples {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
