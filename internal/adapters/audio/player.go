package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Player outputs a rendered WAV.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// CommandPlayer pipes the WAV into an external player such as `aplay -q -`.
type CommandPlayer struct {
	Command string
	Args    []string
}

// Play runs the command and waits for it to exit.
func (p CommandPlayer) Play(ctx context.Context, wav []byte) error {
	if p.Command == "" {
		return fmt.Errorf("audio: no player command configured")
	}
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdin = bytes.NewReader(wav)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("audio: %s: %w: %s", p.Command, err, msg)
		}
		return fmt.Errorf("audio: %s: %w", p.Command, err)
	}
	return nil
}

// FileSink writes the WAV to Path, replacing it atomically. Used on
// headless workstations where another process picks the file up.
type FileSink struct {
	Path string
}

// Play writes the file.
func (s FileSink) Play(_ context.Context, wav []byte) error {
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".cue-*.wav")
	if err != nil {
		return fmt.Errorf("audio: create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		return fmt.Errorf("audio: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("audio: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("audio: rename to %s: %w", s.Path, err)
	}
	return nil
}
