package approval

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/logger"
)

var (
	ErrNotFound        = errors.New("no interrupt for message")
	ErrAlreadyResolved = errors.New("interrupt already resolved")
	ErrEmptySelection  = errors.New("no items selected")
	ErrUnknownItem     = errors.New("selected item is not part of the proposal")
	ErrInvalidAction   = errors.New("invalid approval action")
)

type State int

const (
	StateNone State = iota
	StatePending
	StateResolved
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	default:
		return "none"
	}
}

// Decision is the user's answer to one interrupt.
type Decision struct {
	Action      chat.Action
	SelectedIDs []string // only for approve_selected
}

type PendingInterrupt struct {
	MessageID  string
	Data       chat.InterruptData
	RaisedAt   time.Time
	ResolvedAt time.Time
	Decision   *Decision
	resolved   bool
	confirmed  bool
}

func (p *PendingInterrupt) State() State {
	if p.resolved {
		return StateResolved
	}
	return StatePending
}

// Confirmed reports whether the agent accepted the resume request.
func (p *PendingInterrupt) Confirmed() bool {
	return p.confirmed
}

// Manager tracks approval interrupts per message. Resolution is optimistic:
// it happens when the user acts, before the agent answers, so a second
// action on the same message is refused immediately.
type Manager struct {
	interrupts map[string]*PendingInterrupt
	order      []string
	mu         sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		interrupts: make(map[string]*PendingInterrupt),
	}
}

// Raise attaches an interrupt to a message. The first payload wins; later
// calls for the same message return false and change nothing.
func (m *Manager) Raise(messageID string, data chat.InterruptData) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interrupts[messageID]; ok {
		return false
	}

	data.Items = append([]chat.ProposalItem(nil), data.Items...)
	m.interrupts[messageID] = &PendingInterrupt{
		MessageID: messageID,
		Data:      data,
		RaisedAt:  time.Now(),
	}
	m.order = append(m.order, messageID)

	logger.Info("interrupt raised", "message", messageID, "type", data.Type, "items", len(data.Items))
	return true
}

// Restore re-attaches an interrupt loaded from a saved transcript. A resolved
// interrupt comes back resolved and confirmed, so it cannot be answered again.
func (m *Manager) Restore(messageID string, data chat.InterruptData, resolved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interrupts[messageID]; ok {
		return
	}

	data.Items = append([]chat.ProposalItem(nil), data.Items...)
	m.interrupts[messageID] = &PendingInterrupt{
		MessageID: messageID,
		Data:      data,
		RaisedAt:  time.Now(),
		resolved:  resolved,
		confirmed: resolved,
	}
	m.order = append(m.order, messageID)
}

func (m *Manager) State(messageID string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.interrupts[messageID]
	if !ok {
		return StateNone
	}
	return p.State()
}

// Get returns a copy of the interrupt attached to a message.
func (m *Manager) Get(messageID string) (PendingInterrupt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.interrupts[messageID]
	if !ok {
		return PendingInterrupt{}, ErrNotFound
	}
	return *p, nil
}

// Latest returns the most recently raised interrupt that is still pending.
func (m *Manager) Latest() (PendingInterrupt, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.interrupts[m.order[i]]
		if !p.resolved {
			return *p, true
		}
	}
	return PendingInterrupt{}, false
}

// Pending lists unresolved interrupts in the order they were raised.
func (m *Manager) Pending() []PendingInterrupt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []PendingInterrupt
	for _, id := range m.order {
		if p := m.interrupts[id]; !p.resolved {
			pending = append(pending, *p)
		}
	}
	return pending
}

// DefaultSelection is every item of the proposal, which is what the user
// starts with before unticking anything.
func (m *Manager) DefaultSelection(messageID string) ([]string, error) {
	p, err := m.Get(messageID)
	if err != nil {
		return nil, err
	}
	return p.Data.ItemIDs(), nil
}

// DecisionFor turns a selection into a decision: everything selected is
// approve_all, a strict subset is approve_selected, nothing is an error.
func (m *Manager) DecisionFor(messageID string, selected []string) (Decision, error) {
	p, err := m.Get(messageID)
	if err != nil {
		return Decision{}, err
	}
	if len(selected) == 0 {
		return Decision{}, ErrEmptySelection
	}

	chosen, err := validateSelection(p.Data, selected)
	if err != nil {
		return Decision{}, err
	}
	if len(chosen) == len(p.Data.Items) {
		return Decision{Action: chat.ActionApproveAll}, nil
	}
	return Decision{Action: chat.ActionApproveSelected, SelectedIDs: chosen}, nil
}

// Resolve marks the interrupt resolved. It fails without changing anything
// when the message has no interrupt, was already resolved, or the decision
// is not valid for the proposal.
func (m *Manager) Resolve(messageID string, d Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.interrupts[messageID]
	if !ok {
		return ErrNotFound
	}
	if p.resolved {
		return ErrAlreadyResolved
	}

	switch d.Action {
	case chat.ActionApproveAll, chat.ActionReject:
		d.SelectedIDs = nil
	case chat.ActionApproveSelected:
		if len(d.SelectedIDs) == 0 {
			return ErrEmptySelection
		}
		chosen, err := validateSelection(p.Data, d.SelectedIDs)
		if err != nil {
			return err
		}
		d.SelectedIDs = chosen
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, d.Action)
	}

	p.resolved = true
	p.ResolvedAt = time.Now()
	p.Decision = &d

	logger.Info("interrupt resolved", "message", messageID, "action", d.Action, "selected", len(d.SelectedIDs))
	return nil
}

// Confirm records that the agent accepted the decision for a message.
func (m *Manager) Confirm(messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.interrupts[messageID]
	if !ok {
		return ErrNotFound
	}
	p.confirmed = true
	return nil
}

// validateSelection returns the selected ids without duplicates, in the
// order given.
func validateSelection(data chat.InterruptData, selected []string) ([]string, error) {
	known := make(map[string]struct{}, len(data.Items))
	for _, item := range data.Items {
		known[item.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(selected))
	chosen := make([]string, 0, len(selected))
	for _, id := range selected {
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		chosen = append(chosen, id)
	}
	return chosen, nil
}
