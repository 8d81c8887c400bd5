package audio

import (
	"log/slog"
	"sync"
)

// Normalizer converts captured PCM to the mono 16kHz wire format. It logs a
// warning on the first format mismatch and validates int16 data alignment.
// Create one per capture stream; not designed for shared use across
// goroutines.
type Normalizer struct {
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize converts pcm captured at srcRate/srcChannels to mono WireSampleRate.
// If the source already matches, pcm is returned unchanged (zero allocation).
// Frames with an odd byte count are dropped (nil return).
func (n *Normalizer) Normalize(pcm []byte, srcRate, srcChannels int) []byte {
	if len(pcm)%2 != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: odd byte count in PCM data, dropping chunk",
				"bytes", len(pcm),
				"sampleRate", srcRate,
				"channels", srcChannels,
			)
		})
		return nil
	}

	if srcRate == WireSampleRate && srcChannels == 1 {
		return pcm
	}

	n.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"fromRate", srcRate,
			"fromChannels", srcChannels,
			"toRate", WireSampleRate,
			"toChannels", 1,
		)
	})

	// Downmix before resampling so the resampler only ever sees mono.
	if srcChannels == 2 {
		pcm = StereoToMono(pcm)
	}
	if srcRate != WireSampleRate {
		pcm = ResampleMono16(pcm, srcRate, WireSampleRate)
	}
	return pcm
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
