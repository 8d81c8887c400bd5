package audio_test

import (
	"bytes"
	"testing"

	"github.com/voxdraft/voxdraft/pkg/audio"
)

func TestFramer_ArbitraryChunkSizes(t *testing.T) {
	t.Parallel()

	// A continuous stream of 12 frames worth of samples, pushed in awkward
	// chunk sizes, must come out as exact 320-sample frames with no sample
	// dropped or duplicated across chunk boundaries.
	const totalFrames = 12
	stream := make([]byte, totalFrames*audio.FrameBytes)
	for i := range stream {
		stream[i] = byte(i * 7)
	}

	f := audio.NewFramer(audio.FrameSamples)
	chunkSizes := []int{1, 3, 639, 640, 641, 7, 1000, 2048}

	var got []byte
	var frameCount int
	pos := 0
	for i := 0; pos < len(stream); i++ {
		n := chunkSizes[i%len(chunkSizes)]
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		for _, frame := range f.Push(stream[pos : pos+n]) {
			if len(frame) != audio.FrameBytes {
				t.Fatalf("frame %d has %d bytes, want %d", frameCount, len(frame), audio.FrameBytes)
			}
			got = append(got, frame...)
			frameCount++
		}
		pos += n
	}

	if frameCount < 10 {
		t.Fatalf("emitted %d frames, want at least 10", frameCount)
	}
	if frameCount != totalFrames {
		t.Fatalf("emitted %d frames, want %d", frameCount, totalFrames)
	}
	if !bytes.Equal(got, stream) {
		t.Error("reassembled frames differ from the input stream")
	}
	if f.Pending() != 0 {
		t.Errorf("pending bytes after exact stream: %d", f.Pending())
	}
}

func TestFramer_CarriesPartialFrames(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(4)
	if frames := f.Push(make([]byte, 5)); len(frames) != 0 {
		t.Fatalf("5 bytes of an 8-byte frame emitted %d frames", len(frames))
	}
	if f.Pending() != 5 {
		t.Errorf("pending = %d, want 5", f.Pending())
	}
	if frames := f.Push(make([]byte, 3)); len(frames) != 1 {
		t.Fatalf("completing the frame emitted %d frames, want 1", len(frames))
	}
}

func TestFramer_Reset(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(4)
	f.Push([]byte{1, 2, 3})
	f.Reset()
	if f.Pending() != 0 {
		t.Errorf("pending after reset = %d, want 0", f.Pending())
	}
}

func TestFramer_EmptyPush(t *testing.T) {
	t.Parallel()

	f := audio.NewFramer(0)
	if frames := f.Push(nil); frames != nil {
		t.Errorf("empty push emitted frames: %v", frames)
	}
}
