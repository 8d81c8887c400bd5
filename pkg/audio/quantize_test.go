package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/voxdraft/voxdraft/pkg/audio"
)

func TestQuantizeSample_ReferenceValues(t *testing.T) {
	t.Parallel()

	// Asymmetric scaling: 32767 for positive, 32768 for negative.
	cases := []struct {
		in   float32
		want int16
	}{
		{0.0, 0},
		{0.5, 16383},
		{-0.5, -16384},
		{1.0, 32767},
		{-1.0, -32768},
	}
	for _, c := range cases {
		if got := audio.QuantizeSample(c.in); got != c.want {
			t.Errorf("QuantizeSample(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestQuantizeSample_Clamps(t *testing.T) {
	t.Parallel()

	if got := audio.QuantizeSample(1.5); got != 32767 {
		t.Errorf("QuantizeSample(1.5) = %d, want 32767", got)
	}
	if got := audio.QuantizeSample(-2.0); got != -32768 {
		t.Errorf("QuantizeSample(-2.0) = %d, want -32768", got)
	}
}

func TestQuantize_Encoding(t *testing.T) {
	t.Parallel()

	pcm := audio.Quantize([]float32{0.0, 0.5, -0.5, 1.0, -1.0})
	want := []int16{0, 16383, -16384, 32767, -32768}
	if len(pcm) != len(want)*2 {
		t.Fatalf("byte length: got %d, want %d", len(pcm), len(want)*2)
	}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestDequantize_Normalization(t *testing.T) {
	t.Parallel()

	pcm := audio.Bytes16([]int16{0, -32768, 16384})
	got := audio.Dequantize(pcm)
	want := []float32{0, -1, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSamples16_IgnoresTrailingOddByte(t *testing.T) {
	t.Parallel()

	got := audio.Samples16([]byte{0x01, 0x00, 0xff})
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Samples16 = %v, want [1]", got)
	}
}
