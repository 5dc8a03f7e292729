package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var ErrNoPlayer = errors.New("player command not configured")

// ExecPlayer plays audio by handing a temporary file to an external command
// such as "mpg123 -q" or "ffplay -nodisp -autoexit -loglevel quiet".
type ExecPlayer struct {
	name    string
	args    []string
	tempDir string
	ext     string
}

// NewExecPlayer parses a command line; the audio file path is appended as the
// last argument on every Play.
func NewExecPlayer(command, tempDir string) (*ExecPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ErrNoPlayer
	}

	return &ExecPlayer{
		name:    fields[0],
		args:    fields[1:],
		tempDir: tempDir,
		ext:     ".mp3",
	}, nil
}

func (p *ExecPlayer) Play(ctx context.Context, audio []byte) error {
	f, err := os.CreateTemp(p.tempDir, "roomchat-*"+p.ext)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(audio); err != nil {
		f.Close()
		return fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audio file: %w", err)
	}

	args := append(append([]string(nil), p.args...), path)
	cmd := exec.CommandContext(ctx, p.name, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}
