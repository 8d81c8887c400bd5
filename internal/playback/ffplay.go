package playback

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/voxdraft/voxdraft/pkg/audio"
)

// FFplayOutput plays s16le mono PCM through an ffplay child process. Each
// instance is one process; Close kills it, which is the hard stop the Player
// relies on. Not safe for concurrent use — the Player serialises access.
type FFplayOutput struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFplayOutput starts an ffplay process reading PCM from stdin.
// It is the default OutputFactory for the real client.
func NewFFplayOutput() (Output, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("playback: ffplay is required (install ffmpeg and ensure it is in PATH)")
	}
	cmd := exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", audio.WireSampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("playback: open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("playback: start ffplay: %w", err)
	}
	return &FFplayOutput{cmd: cmd, stdin: stdin}, nil
}

// Write appends pcm to the process's stdin; ffplay's own buffering queues it
// after whatever is already playing.
func (o *FFplayOutput) Write(pcm []byte) error {
	_, err := o.stdin.Write(pcm)
	return err
}

// Close kills the process, halting playback immediately.
func (o *FFplayOutput) Close() error {
	if o.cmd != nil && o.cmd.Process != nil {
		_ = o.cmd.Process.Kill()
		_ = o.cmd.Wait()
	}
	return nil
}
