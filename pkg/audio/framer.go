package audio

// Framer slices a continuous PCM byte stream into fixed-size frames. Partial
// leftover bytes are carried across Push calls — never dropped, never
// duplicated — so arbitrary input chunk sizes produce an exact reframing of
// the stream.
//
// Create one per capture stream; not safe for concurrent use. The capture
// pipeline's framing runs on a single goroutine, so no locking is needed.
type Framer struct {
	frameBytes int
	rest       []byte
}

// NewFramer creates a Framer emitting frames of frameSamples int16 samples.
// frameSamples <= 0 falls back to the wire default of FrameSamples.
func NewFramer(frameSamples int) *Framer {
	if frameSamples <= 0 {
		frameSamples = FrameSamples
	}
	return &Framer{frameBytes: frameSamples * BytesPerSample}
}

// Push appends pcm to the internal buffer and returns every complete frame
// now available, in capture order. Each returned frame is an independent
// copy of exactly the configured frame size.
func (f *Framer) Push(pcm []byte) [][]byte {
	if len(pcm) == 0 {
		return nil
	}
	f.rest = append(f.rest, pcm...)

	var frames [][]byte
	for len(f.rest) >= f.frameBytes {
		frame := make([]byte, f.frameBytes)
		copy(frame, f.rest[:f.frameBytes])
		frames = append(frames, frame)
		f.rest = f.rest[f.frameBytes:]
	}
	// Reclaim the backing array once the buffer has drained completely,
	// otherwise the slice would pin every chunk ever pushed.
	if len(f.rest) == 0 {
		f.rest = nil
	} else {
		rest := make([]byte, len(f.rest))
		copy(rest, f.rest)
		f.rest = rest
	}
	return frames
}

// Pending returns the number of buffered bytes awaiting the next complete
// frame.
func (f *Framer) Pending() int {
	return len(f.rest)
}

// Reset discards any buffered partial frame. Used when capture restarts so a
// stale remainder cannot leak into the new stream.
func (f *Framer) Reset() {
	f.rest = nil
}
