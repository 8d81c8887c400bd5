package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
)

// ffmpegDevice captures microphone PCM through an ffmpeg child process.
type ffmpegDevice struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	// lead holds probe bytes consumed during open, replayed on first Read.
	lead []byte
}

// FFmpegOpener returns a DeviceOpener that records from the named input
// device ("default" when empty) at rate Hz with the given channel count.
// A permission refusal from the OS audio stack surfaces as
// ErrPermissionDenied.
func FFmpegOpener(device string, rate, channels int) DeviceOpener {
	return func(ctx context.Context) (Device, error) {
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			return nil, errors.New("capture: ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
		}
		args, err := micArgs(runtime.GOOS, device, rate, channels)
		if err != nil {
			return nil, err
		}

		cmd := exec.CommandContext(ctx, "ffmpeg", args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("capture: open ffmpeg stdout: %w", err)
		}
		var stderr strings.Builder
		cmd.Stderr = &stderr

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("capture: start ffmpeg: %w", err)
		}

		d := &ffmpegDevice{cmd: cmd, stdout: stdout}

		// ffmpeg exits immediately when the audio stack refuses the device;
		// probe the first read so the caller gets a permission error instead
		// of a silent dead stream.
		probe := make([]byte, 2)
		if _, err := io.ReadFull(stdout, probe); err != nil {
			_ = d.Close()
			msg := strings.ToLower(stderr.String())
			if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
				return nil, ErrPermissionDenied
			}
			return nil, fmt.Errorf("capture: device produced no audio: %w", err)
		}
		d.lead = probe
		return d, nil
	}
}

func micArgs(goos, device string, rate, channels int) ([]string, error) {
	if device == "" {
		device = "default"
	}
	common := []string{
		"-hide_banner", "-loglevel", "error",
		"-ac", fmt.Sprintf("%d", channels),
		"-ar", fmt.Sprintf("%d", rate),
		"-f", "s16le", "-",
	}
	switch goos {
	case "darwin":
		if device == "default" {
			device = ":0"
		}
		return append([]string{"-f", "avfoundation", "-i", device}, common...), nil
	case "linux":
		return append([]string{"-f", "pulse", "-i", device}, common...), nil
	default:
		return nil, fmt.Errorf("capture: mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// Read returns captured PCM, replaying the probe bytes first so no sample is
// lost to the permission check.
func (d *ffmpegDevice) Read(p []byte) (int, error) {
	if len(d.lead) > 0 {
		n := copy(p, d.lead)
		d.lead = d.lead[n:]
		return n, nil
	}
	return d.stdout.Read(p)
}

// Close kills the ffmpeg process and releases the device.
func (d *ffmpegDevice) Close() error {
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
		_ = d.cmd.Wait()
	}
	return nil
}
