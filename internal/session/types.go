package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/bowerhall/roomchat/internal/approval"
	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/metrics"
)

var (
	ErrBusy         = errors.New("a turn is already in progress")
	ErrNoThread     = errors.New("no thread established yet")
	ErrEmptyMessage = errors.New("message has no text or image")
)

const defaultTurnTimeout = 2 * time.Minute

// Transport opens the agent's event stream for a new turn or a resume. The
// caller closes the returned body.
type Transport interface {
	StartTurn(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error)
	Resume(ctx context.Context, req chat.ResumeRequest) (io.ReadCloser, error)
}

// Speaker is the voice playback the session hands finished replies to.
type Speaker interface {
	Speak(text string)
	Stop()
}

// Recorder persists finished messages, e.g. to the transcript store.
type Recorder interface {
	Save(ctx context.Context, sessionKey, threadID string, m chat.Message) error
}

type Session struct {
	key       string
	transport Transport
	approvals *approval.Manager
	speaker   Speaker
	recorder  Recorder
	metrics   *metrics.Metrics
	onChange  func(chat.Message)
	timeout   time.Duration

	mu       sync.Mutex
	messages []chat.Message
	threadID string
	loading  bool
	voice    bool

	processing sync.Mutex
}

type Option func(*Session)

// WithKey sets the local session key used when recording messages.
func WithKey(key string) Option {
	return func(s *Session) {
		s.key = key
	}
}

// WithSpeaker enables voice playback of finished assistant replies.
func WithSpeaker(sp Speaker) Option {
	return func(s *Session) {
		s.speaker = sp
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithOnChange registers a callback fired with a copy of every message that
// is added or updated. It runs on the goroutine driving the turn.
func WithOnChange(fn func(chat.Message)) Option {
	return func(s *Session) {
		s.onChange = fn
	}
}

func WithTurnTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithThread restores a thread id from an earlier run.
func WithThread(threadID string) Option {
	return func(s *Session) {
		s.threadID = threadID
	}
}

// WithVoice sets whether replies are spoken from the start.
func WithVoice(enabled bool) Option {
	return func(s *Session) {
		s.voice = enabled
	}
}

// WithHistory restores a recorded conversation. Interrupts on restored
// messages are re-attached, keeping their resolved state.
func WithHistory(messages []chat.Message) Option {
	return func(s *Session) {
		for _, m := range messages {
			s.messages = append(s.messages, m.Clone())
			if m.Interrupt != nil {
				s.approvals.Restore(m.ID, *m.Interrupt, m.InterruptResolved)
			}
		}
	}
}
