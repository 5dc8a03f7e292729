// Package agentstub is a scripted stand-in for the remote shopping agent. It
// speaks the same HTTP and stream protocol, so the client can be developed
// and tested without the real backend.
package agentstub

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/logger"
	"github.com/bowerhall/roomchat/internal/stream"
)

type Server struct {
	engine     *gin.Engine
	frameDelay time.Duration
	failStatus int

	mu          sync.Mutex
	threads     map[string]*thread
	turns       []chat.TurnRequest
	resumes     []chat.ResumeRequest
	ttsTexts    []string
	screenshots map[string]string
}

// thread remembers the proposal a conversation is paused on.
type thread struct {
	pending *chat.InterruptData
}

type Option func(*Server)

// WithFrameDelay sleeps between frames to mimic a slow agent.
func WithFrameDelay(d time.Duration) Option {
	return func(s *Server) {
		s.frameDelay = d
	}
}

// WithFailStatus makes chat and resume requests fail with status.
func WithFailStatus(status int) Option {
	return func(s *Server) {
		s.failStatus = status
	}
}

// WithScreenshot serves a fixed base64 frame for a browser worker.
func WithScreenshot(worker, base64Image string) Option {
	return func(s *Server) {
		s.screenshots[worker] = base64Image
	}
}

func New(opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:      gin.New(),
		threads:     make(map[string]*thread),
		screenshots: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	api.POST("/chat", s.chat)
	api.POST("/chat/resume", s.resume)
	api.POST("/voice/tts", s.tts)
	api.POST("/voice/transcribe", s.transcribe)
	api.GET("/browser/screenshot", s.screenshot("a"))
	api.GET("/browser/screenshot-b", s.screenshot("b"))
}

// Turns returns every start-turn request received, in order.
func (s *Server) Turns() []chat.TurnRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.TurnRequest(nil), s.turns...)
}

// Resumes returns every resume request received, in order.
func (s *Server) Resumes() []chat.ResumeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.ResumeRequest(nil), s.resumes...)
}

// TTSTexts returns the text of every synthesis request received.
func (s *Server) TTSTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ttsTexts...)
}

func (s *Server) chat(c *gin.Context) {
	var req chat.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	s.turns = append(s.turns, req)
	s.mu.Unlock()

	if s.failStatus != 0 {
		c.JSON(s.failStatus, gin.H{"error": "agent unavailable"})
		return
	}

	threadID := uuid.New().String()
	if req.ThreadID != nil && *req.ThreadID != "" {
		threadID = *req.ThreadID
	}

	r := replyTo(req)

	s.mu.Lock()
	th, ok := s.threads[threadID]
	if !ok {
		th = &thread{}
		s.threads[threadID] = th
	}
	th.pending = r.interrupt
	s.mu.Unlock()

	logger.Debug("stub turn", "thread", threadID, "messages", len(req.Messages), "interrupt", r.interrupt != nil)
	s.writeStream(c, threadID, r)
}

func (s *Server) resume(c *gin.Context) {
	var req chat.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	s.resumes = append(s.resumes, req)
	th, ok := s.threads[req.ThreadID]
	var pending *chat.InterruptData
	if ok {
		pending = th.pending
	}
	s.mu.Unlock()

	if s.failStatus != 0 {
		c.JSON(s.failStatus, gin.H{"error": "agent unavailable"})
		return
	}
	if !ok || pending == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending approval for thread"})
		return
	}
	if !req.Action.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}

	r := resumeReply(*pending, req)

	s.mu.Lock()
	th.pending = r.interrupt
	s.mu.Unlock()

	s.writeStream(c, req.ThreadID, r)
}

// writeStream sends the reply as growing cumulative snapshots. Only the
// first frame names the thread, which is how the real agent behaves when it
// streams partial updates.
func (s *Server) writeStream(c *gin.Context, threadID string, r reply) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	enc := stream.NewEncoder(c.Writer)
	snapshots := cumulative(r.content)

	for i, text := range snapshots {
		content := text
		ev := stream.Event{Content: &content}
		if i == 0 {
			ev.ThreadID = threadID
		}
		if i == len(snapshots)-1 {
			ev.ToolCalls = r.toolCalls
			ev.Products = r.products
			ev.Interrupt = r.interrupt
		}

		if err := enc.Encode(ev); err != nil {
			logger.Warn("stub stream write failed", "error", err)
			return
		}
		if s.frameDelay > 0 {
			select {
			case <-c.Request.Context().Done():
				return
			case <-time.After(s.frameDelay):
			}
		}
	}

	if err := enc.Done(); err != nil {
		logger.Warn("stub stream write failed", "error", err)
	}
}

func (s *Server) tts(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	s.mu.Lock()
	s.ttsTexts = append(s.ttsTexts, req.Text)
	s.mu.Unlock()

	c.Header("Content-Disposition", "inline; filename=speech.mp3")
	c.Data(http.StatusOK, "audio/mpeg", append([]byte("ID3"), req.Text...))
}

// transcribe echoes the uploaded bytes back as the transcript.
func (s *Server) transcribe(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": string(data)})
}

func (s *Server) screenshot(worker string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		shot, ok := s.screenshots[worker]
		s.mu.Unlock()

		if !ok {
			c.JSON(http.StatusOK, gin.H{"screenshot": nil, "status": "no_browser"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"screenshot": shot, "status": "ok"})
	}
}
