package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/roomchat/internal/logger"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarn:
		return "warn"
	default:
		return "info"
	}
}

type NotifyFunc func(message string)

// Alerter tells the user about background failures, at most once per
// cooldown for each component and message.
type Alerter struct {
	mu        sync.Mutex
	notify    NotifyFunc
	cooldowns map[string]time.Time
	cooldown  time.Duration
	now       func() time.Time
}

func New(notify NotifyFunc, cooldown time.Duration) *Alerter {
	return &Alerter{
		notify:    notify,
		cooldowns: make(map[string]time.Time),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (a *Alerter) Alert(severity Severity, component, message string, err error) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := fmt.Sprintf("%s:%s", component, message)

	if lastSent, ok := a.cooldowns[key]; ok {
		if a.now().Sub(lastSent) < a.cooldown {
			logger.Debug("alert suppressed (cooldown)", "component", component, "message", message)
			return
		}
	}

	text := fmt.Sprintf("[%s] %s: %s", severity, component, message)
	if err != nil {
		text += fmt.Sprintf(" (%v)", err)
	}

	if a.notify != nil {
		a.notify(text)
		a.cooldowns[key] = a.now()
		logger.Info("alert sent", "component", component, "severity", severity)
	}
}

// Clear forgets the cooldowns of a component, so its next failure is
// reported straight away.
func (a *Alerter) Clear(component string) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prefix := component + ":"
	for key := range a.cooldowns {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(a.cooldowns, key)
		}
	}
}

func (a *Alerter) Critical(component, message string, err error) {
	a.Alert(SeverityCritical, component, message, err)
}

func (a *Alerter) Warn(component, message string, err error) {
	a.Alert(SeverityWarn, component, message, err)
}
