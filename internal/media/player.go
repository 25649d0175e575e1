package media

import (
	"fmt"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// Player plays audio files with an external command, one process per clip.
type Player struct {
	command string
	args    []string
	logger  *zap.Logger
}

// NewPlayer creates a player that runs command with args followed by the file path.
func NewPlayer(command string, args []string, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{command: command, args: args, logger: logger}
}

// Play starts playback. The returned channel is closed when the process exits.
func (p *Player) Play(path string) (func(), <-chan struct{}, error) {
	args := append(append([]string(nil), p.args...), path)
	cmd := exec.Command(p.command, args...)
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", p.command, err)
	}

	done := make(chan struct{})
	go func() {
		if err := cmd.Wait(); err != nil {
			p.logger.Debug("player exited", zap.String("path", path), zap.Error(err))
		}
		close(done)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() { _ = cmd.Process.Kill() })
	}
	return stop, done, nil
}
