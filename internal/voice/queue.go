// Package voice speaks finalized assistant text: it splits the text into
// sentence-aligned chunks and synthesizes and plays them one at a time.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/roomchat/internal/logger"
	"github.com/bowerhall/roomchat/internal/metrics"
)

const defaultChunkTimeout = 30 * time.Second

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays one audio payload. Play blocks until playback finishes or ctx
// is cancelled, and releases everything it allocated before returning.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

type Option func(*Queue)

func WithChunkSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.chunkSize = n
		}
	}
}

// WithChunkTimeout bounds synthesis plus playback of a single chunk.
func WithChunkTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.chunkTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// Queue holds at most one utterance. Chunks are strictly sequential: the
// next chunk is not synthesized until the previous one has finished playing.
type Queue struct {
	synth        Synthesizer
	player       Player
	chunkSize    int
	chunkTimeout time.Duration
	metrics      *metrics.Metrics

	// ctl serializes Speak and Stop so only one utterance is ever live
	ctl sync.Mutex

	mu       sync.Mutex
	chunks   []string
	speaking bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewQueue(synth Synthesizer, player Player, opts ...Option) *Queue {
	q := &Queue{
		synth:        synth,
		player:       player,
		chunkSize:    DefaultChunkSize,
		chunkTimeout: defaultChunkTimeout,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Speak stops whatever is playing and starts speaking text in the background.
func (q *Queue) Speak(text string) {
	q.ctl.Lock()
	defer q.ctl.Unlock()

	q.stop()

	chunks := Chunk(text, q.chunkSize)
	if len(chunks) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	q.mu.Lock()
	q.chunks = chunks
	q.speaking = true
	q.cancel = cancel
	q.done = done
	q.mu.Unlock()

	logger.Debug("voice utterance started", "chunks", len(chunks))
	go q.run(ctx, cancel, done)
}

// Stop halts the current chunk, drops the pending ones and waits for the
// playback goroutine to exit. No chunk is requested after Stop returns.
func (q *Queue) Stop() {
	q.ctl.Lock()
	defer q.ctl.Unlock()

	q.stop()
}

func (q *Queue) stop() {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.chunks = nil
	q.speaking = false
	q.cancel = nil
	q.done = nil
	q.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Debug("voice utterance stopped")
}

// Wait blocks until the current utterance, if any, has finished.
func (q *Queue) Wait() {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.speaking
}

// Pending returns the chunks not yet handed to the synthesizer.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.chunks...)
}

func (q *Queue) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer q.finish(done)

	for {
		chunk, ok := q.next(ctx)
		if !ok {
			return
		}

		if err := q.play(ctx, chunk); err != nil {
			if ctx.Err() == nil {
				// voice is best effort, the rest of the utterance is dropped quietly
				logger.Debug("voice chunk failed", "error", err)
				q.metrics.VoiceFailure()
			}
			return
		}
		q.metrics.VoiceChunk()
	}
}

func (q *Queue) next(ctx context.Context) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ctx.Err() != nil || len(q.chunks) == 0 {
		return "", false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}

func (q *Queue) play(ctx context.Context, chunk string) error {
	ctx, cancel := context.WithTimeout(ctx, q.chunkTimeout)
	defer cancel()

	audio, err := q.synth.Synthesize(ctx, chunk)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	if err := q.player.Play(ctx, audio); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// finish clears state, unless a Stop or a newer Speak already took over.
func (q *Queue) finish(done chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.done != done {
		return
	}
	q.chunks = nil
	q.speaking = false
	q.cancel = nil
	q.done = nil
}
