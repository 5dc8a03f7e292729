package session

import (
	"context"
	"errors"
	"io"

	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/extract"
	"github.com/bowerhall/roomchat/internal/logger"
	"github.com/bowerhall/roomchat/internal/stream"
)

type opener func(ctx context.Context) (io.ReadCloser, error)

// runTurn opens the agent stream and merges its events into a new assistant
// message. Any transport failure ends in exactly one synthetic error message.
// Loading is cleared when it returns.
func (s *Session) runTurn(ctx context.Context, kind string, open opener) error {
	defer s.setLoading(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.metrics.Turn(kind)

	body, err := open(ctx)
	if err != nil {
		return s.fail(ctx, kind, err)
	}
	defer body.Close()

	reply := chat.NewMessage(chat.RoleAssistant, "")
	s.mu.Lock()
	s.messages = append(s.messages, reply)
	s.mu.Unlock()
	s.changed(reply)

	dec := stream.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.metrics.FramesDropped(dec.Dropped())
			s.record(ctx, s.message(reply.ID))
			return s.fail(ctx, kind, err)
		}

		s.metrics.Frame()
		s.apply(reply.ID, ev)
	}
	s.metrics.FramesDropped(dec.Dropped())

	final := s.message(reply.ID)
	logger.Debug("turn complete", "kind", kind, "frames", dec.Frames(), "dropped", dec.Dropped(), "thread", s.ThreadID())

	s.record(ctx, final)
	s.speak(final)
	return nil
}

// apply merges one cumulative snapshot into the message. Fields present in
// the event replace the old value; absent fields are left alone.
func (s *Session) apply(id string, ev stream.Event) {
	s.mu.Lock()

	if ev.ThreadID != "" {
		switch {
		case s.threadID == "":
			s.threadID = ev.ThreadID
			logger.Debug("thread assigned", "thread", ev.ThreadID)
		case s.threadID != ev.ThreadID:
			logger.Warn("ignoring thread change", "thread", s.threadID, "received", ev.ThreadID)
		}
	}

	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	m := &s.messages[idx]

	if ev.Content != nil {
		m.Content = *ev.Content
		m.ColorPalette = extract.Palette(m.Content)
	}

	if ev.ToolCalls != nil {
		m.ToolCalls = ev.ToolCalls
	}

	// listings found by the search tool win over the event's own products
	if ev.ToolCalls != nil || ev.Products != nil {
		products := extract.Products(m.ToolCalls)
		if len(products) == 0 {
			products = ev.Products
		}
		if len(products) == 0 {
			products = nil
		}
		m.Products = products
	}

	raised := false
	if ev.Interrupt != nil && m.Interrupt == nil {
		data := *ev.Interrupt
		m.Interrupt = &data
		raised = true
	}

	snapshot := m.Clone()
	s.mu.Unlock()

	if raised && s.approvals.Raise(id, *snapshot.Interrupt) {
		s.metrics.Interrupt("raised")
	}
	s.changed(snapshot)
}

// fail appends the synthetic error reply.
func (s *Session) fail(ctx context.Context, kind string, err error) error {
	logger.Error("turn failed", "kind", kind, "error", err)
	s.metrics.TurnFailed(kind)

	msg := chat.NewErrorMessage()
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.changed(msg)
	s.record(ctx, msg)
	return err
}

func (s *Session) speak(m chat.Message) {
	if s.speaker == nil || !s.VoiceEnabled() {
		return
	}
	text := extract.Display(m.Content, m.Interrupt != nil)
	if text == "" {
		return
	}
	s.speaker.Speak(text)
}

func (s *Session) message(id string) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOf(id); idx >= 0 {
		return s.messages[idx].Clone()
	}
	return chat.Message{}
}

// indexOf searches from the end since the active message is almost always
// last. Caller holds s.mu.
func (s *Session) indexOf(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
