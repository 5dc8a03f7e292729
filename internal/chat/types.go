package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Action is the user's answer to an interrupt.
type Action string

const (
	ActionApproveAll      Action = "approve_all"
	ActionApproveSelected Action = "approve_selected"
	ActionReject          Action = "reject"
)

func (a Action) Valid() bool {
	switch a {
	case ActionApproveAll, ActionApproveSelected, ActionReject:
		return true
	default:
		return false
	}
}

type InterruptType string

const (
	InterruptShortlist      InterruptType = "shortlist"
	InterruptContactSellers InterruptType = "contact_sellers"
)

// SearchTool is the tool whose results carry marketplace listings.
const SearchTool = "search_marketplace"

// ErrorText is the content of the synthetic message appended when a turn fails.
const ErrorText = "Sorry, I encountered an error. Please try again."

// Price accepts a JSON number or a price written as text, such as "$120" or
// "£1,250.00". Text without any digits decodes as zero.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Price(n)
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("price must be a number or string: %s", data)
	}

	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		*p = 0
		return nil
	}

	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return fmt.Errorf("price %q: %w", text, err)
	}
	*p = Price(v)
	return nil
}

type ToolCall struct {
	Tool   string          `json:"tool"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type ProductListing struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Price       Price   `json:"price"`
	Currency    string  `json:"currency"`
	ImageURL    string  `json:"image_url"`
	Source      string  `json:"source"`
	URL         string  `json:"url"`
	Seller      string  `json:"seller"`
	Condition   string  `json:"condition"`
	Location    string  `json:"location"`
	Description string  `json:"description,omitempty"`
}

type ProposalItem struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Price        Price   `json:"price"`
	Source       string  `json:"source"`
	URL          string  `json:"url"`
	ImageURL     string  `json:"image_url,omitempty"`
	Seller       string  `json:"seller,omitempty"`
	DraftMessage string  `json:"draft_message,omitempty"`
}

type InterruptData struct {
	Type      InterruptType  `json:"type"`
	Items     []ProposalItem `json:"items"`
	ItemCount int            `json:"item_count"`
	Message   string         `json:"message"`
}

// ItemIDs returns the proposal item ids in order.
func (d *InterruptData) ItemIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for _, item := range d.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

type Message struct {
	ID                string
	Role              Role
	Content           string
	Image             string // base64, user messages only
	ToolCalls         []ToolCall
	Products          []ProductListing
	ColorPalette      []string
	Interrupt         *InterruptData
	InterruptResolved bool
	Synthetic         bool // fixed error text, not agent output
	Timestamp         time.Time
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	c := m
	c.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	c.Products = append([]ProductListing(nil), m.Products...)
	c.ColorPalette = append([]string(nil), m.ColorPalette...)
	if m.Interrupt != nil {
		in := *m.Interrupt
		in.Items = append([]ProposalItem(nil), m.Interrupt.Items...)
		c.Interrupt = &in
	}
	return c
}
