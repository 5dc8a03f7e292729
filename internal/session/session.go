package session

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/bowerhall/roomchat/internal/approval"
	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/logger"
)

func New(transport Transport, opts ...Option) *Session {
	s := &Session{
		key:       uuid.New().String(),
		transport: transport,
		approvals: approval.NewManager(),
		timeout:   defaultTurnTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send appends a user message and runs one agent turn over the whole
// conversation. image is base64 and may be empty.
func (s *Session) Send(ctx context.Context, content, image string) error {
	if strings.TrimSpace(content) == "" && image == "" {
		return ErrEmptyMessage
	}
	if !s.TryAcquire() {
		return ErrBusy
	}
	defer s.Release()

	user := chat.NewMessage(chat.RoleUser, content)
	user.Image = image

	s.mu.Lock()
	s.messages = append(s.messages, user)
	req := chat.TurnRequest{
		Messages: chat.History(s.messages),
		ThreadID: s.threadRef(),
	}
	s.loading = true
	s.mu.Unlock()

	s.changed(user)
	s.record(ctx, user)

	return s.runTurn(ctx, "send", func(ctx context.Context) (io.ReadCloser, error) {
		return s.transport.StartTurn(ctx, req)
	})
}

// Resume answers the interrupt attached to messageID. The interrupt is
// marked resolved before the request goes out, so a repeated answer is
// refused with approval.ErrAlreadyResolved and no request.
func (s *Session) Resume(ctx context.Context, messageID string, d approval.Decision) error {
	if !s.TryAcquire() {
		return ErrBusy
	}
	defer s.Release()

	threadID := s.ThreadID()
	if threadID == "" {
		return ErrNoThread
	}

	if err := s.approvals.Resolve(messageID, d); err != nil {
		return err
	}
	resolved, err := s.approvals.Get(messageID)
	if err != nil {
		return err
	}
	s.metrics.Interrupt("resolved")

	s.mu.Lock()
	var updated chat.Message
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			s.messages[i].InterruptResolved = true
			updated = s.messages[i].Clone()
			break
		}
	}
	s.loading = true
	s.mu.Unlock()

	if updated.ID != "" {
		s.changed(updated)
		s.record(ctx, updated)
	}

	req := chat.ResumeRequest{
		ThreadID:    threadID,
		Action:      resolved.Decision.Action,
		SelectedIDs: resolved.Decision.SelectedIDs,
	}

	err = s.runTurn(ctx, "resume", func(ctx context.Context) (io.ReadCloser, error) {
		return s.transport.Resume(ctx, req)
	})
	if err == nil {
		s.approvals.Confirm(messageID)
		s.metrics.Interrupt("confirmed")
	}
	return err
}

// ApproveAll approves every item of the proposal on messageID.
func (s *Session) ApproveAll(ctx context.Context, messageID string) error {
	return s.Resume(ctx, messageID, approval.Decision{Action: chat.ActionApproveAll})
}

// ApproveSelected approves the given items. Selecting every item is sent as
// approve_all.
func (s *Session) ApproveSelected(ctx context.Context, messageID string, ids []string) error {
	d, err := s.approvals.DecisionFor(messageID, ids)
	if err != nil {
		return err
	}
	return s.Resume(ctx, messageID, d)
}

func (s *Session) Reject(ctx context.Context, messageID string) error {
	return s.Resume(ctx, messageID, approval.Decision{Action: chat.ActionReject})
}

// ToggleVoice flips voice playback and returns the new setting. Turning it
// off stops anything currently being spoken.
func (s *Session) ToggleVoice() bool {
	s.mu.Lock()
	s.voice = !s.voice
	enabled := s.voice
	s.mu.Unlock()

	if !enabled {
		s.StopSpeaking()
	}
	return enabled
}

func (s *Session) SetVoice(enabled bool) {
	s.mu.Lock()
	s.voice = enabled
	s.mu.Unlock()

	if !enabled {
		s.StopSpeaking()
	}
}

func (s *Session) StopSpeaking() {
	if s.speaker != nil {
		s.speaker.Stop()
	}
}

// Messages returns a copy of the conversation in order.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]chat.Message, len(s.messages))
	for i, m := range s.messages {
		copied[i] = m.Clone()
	}
	return copied
}

func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) VoiceEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

// Key is the local identifier this session records messages under.
func (s *Session) Key() string {
	return s.key
}

func (s *Session) Interrupts() *approval.Manager {
	return s.approvals
}

// TryAcquire attempts to acquire the processing lock.
// Returns true if acquired, false if a turn is already running.
func (s *Session) TryAcquire() bool {
	return s.processing.TryLock()
}

// Release releases the processing lock.
func (s *Session) Release() {
	s.processing.Unlock()
}

// threadRef returns the thread id for a request, nil until one is known.
// Caller holds s.mu.
func (s *Session) threadRef() *string {
	if s.threadID == "" {
		return nil
	}
	id := s.threadID
	return &id
}

func (s *Session) changed(m chat.Message) {
	if s.onChange != nil {
		s.onChange(m)
	}
}

func (s *Session) record(ctx context.Context, m chat.Message) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Save(context.WithoutCancel(ctx), s.key, s.ThreadID(), m); err != nil {
		logger.Warn("failed to record message", "message", m.ID, "error", err)
	}
}
