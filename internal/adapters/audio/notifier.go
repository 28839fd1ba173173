package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/config"
	"gitlab.com/talagas/dashboard/order-notifier/internal/adapters/metrics"
	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
	"gitlab.com/talagas/dashboard/order-notifier/pkg/safego"
)

const playTimeout = 5 * time.Second

// ErrClosed is returned by PlayNewOrderCue after Close.
var ErrClosed = errors.New("audio notifier closed")

// Notifier implements domain.AudioNotifier. Playback runs in the background;
// a cue requested while another is still playing is skipped.
type Notifier struct {
	logger domain.Logger
	player Player
	wav    []byte

	playing atomic.Bool

	// mu guards closed together with wg.Add so Close never races a new playback.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewNotifier renders the cue once and returns a notifier that plays it.
func NewNotifier(logger domain.Logger, player Player) *Notifier {
	return &Notifier{
		logger: logger,
		player: player,
		wav:    NewOrderCue().WAV(),
	}
}

// NewPlayerFromConfig picks the file sink when audio_output_file is set,
// otherwise the external command.
func NewPlayerFromConfig(cfg config.NotificationConfig) Player {
	if cfg.AudioOutputFile != "" {
		return FileSink{Path: cfg.AudioOutputFile}
	}
	return CommandPlayer{Command: cfg.AudioCommand, Args: cfg.AudioArgs}
}

// PlayNewOrderCue starts playback and returns immediately.
func (n *Notifier) PlayNewOrderCue(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if !n.playing.CompareAndSwap(false, true) {
		n.mu.Unlock()
		metrics.IncrementAudioCue("skipped")
		n.logger.Debug(ctx, "Audio cue already playing; skipping")
		return nil
	}
	n.wg.Add(1)
	n.mu.Unlock()

	safego.Execute(ctx, n.logger, "AudioCuePlayback", func() {
		defer n.wg.Done()
		defer n.playing.Store(false)

		playCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), playTimeout)
		defer cancel()
		if err := n.player.Play(playCtx, n.wav); err != nil {
			metrics.IncrementAudioCue("failed")
			n.logger.Warn(ctx, "Failed to play new order cue", "error", err.Error())
			return
		}
		metrics.IncrementAudioCue("played")
	})
	return nil
}

// Close rejects further cues and waits for an in-flight playback.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}
