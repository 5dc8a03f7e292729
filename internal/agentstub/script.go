package agentstub

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bowerhall/roomchat/internal/chat"
)

type reply struct {
	content   string
	toolCalls []chat.ToolCall
	products  []chat.ProductListing
	interrupt *chat.InterruptData
}

var catalog = []chat.ProductListing{
	{
		ID:        "oak-table",
		Title:     "Solid oak coffee table",
		Price:     85,
		Currency:  "GBP",
		Source:    "ebay",
		URL:       "https://example.com/listing/oak-table",
		Seller:    "woodworks_ltd",
		Condition: "used",
		Location:  "Hackney, London",
	},
	{
		ID:        "linen-sofa",
		Title:     "Three seater linen sofa",
		Price:     240,
		Currency:  "GBP",
		Source:    "gumtree",
		URL:       "https://example.com/listing/linen-sofa",
		Seller:    "marta",
		Condition: "like new",
		Location:  "Islington, London",
	},
	{
		ID:        "brass-lamp",
		Title:     "Vintage brass floor lamp",
		Price:     40,
		Currency:  "GBP",
		Source:    "facebook",
		URL:       "https://example.com/listing/brass-lamp",
		Seller:    "retro_finds",
		Condition: "used",
		Location:  "Camden, London",
	},
}

const reviewMessage = "Please review the proposed items."

// replyTo picks a scripted answer from the last user message.
func replyTo(req chat.TurnRequest) reply {
	var last chat.HistoryEntry
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == chat.RoleUser {
			last = req.Messages[i]
			break
		}
	}
	text := strings.ToLower(last.Content)

	switch {
	case strings.Contains(text, "shortlist"):
		return shortlistReply()
	case strings.Contains(text, "palette") || last.Image != nil:
		return reply{
			content: "Your room has warm neutral tones with soft green accents. " +
				"[COLOR_PALETTE: #D4C5B0, #8A9A5B, #F5F1E8, #5C4033, #2F3E46]",
		}
	case strings.Contains(text, "find") || strings.Contains(text, "search"):
		return searchReply(last.Content)
	default:
		return reply{content: "You said: " + last.Content}
	}
}

func searchReply(query string) reply {
	result, _ := json.Marshal(map[string]any{"products": catalog})
	args, _ := json.Marshal(map[string]string{"query": query})

	// the agent serializes tool output as a JSON string
	encoded, _ := json.Marshal(string(result))

	return reply{
		content: fmt.Sprintf("I found %d listings that could work for you.", len(catalog)),
		toolCalls: []chat.ToolCall{{
			Tool:   chat.SearchTool,
			Args:   args,
			Result: encoded,
		}},
	}
}

// shortlistReply pauses for approval. Its content is the raw proposal JSON,
// which clients hide while the approval card is shown.
func shortlistReply() reply {
	items := make([]chat.ProposalItem, 0, len(catalog))
	for _, p := range catalog {
		items = append(items, chat.ProposalItem{
			ID:     p.ID,
			Title:  p.Title,
			Price:  p.Price,
			Source: p.Source,
			URL:    p.URL,
			Seller: p.Seller,
		})
	}
	data := &chat.InterruptData{
		Type:      chat.InterruptShortlist,
		Items:     items,
		ItemCount: len(items),
		Message:   reviewMessage,
	}
	raw, _ := json.Marshal(data)

	return reply{content: string(raw), interrupt: data}
}

// resumeReply continues a paused thread. An approved shortlist moves on to
// seller outreach, which needs its own approval.
func resumeReply(pending chat.InterruptData, req chat.ResumeRequest) reply {
	if req.Action == chat.ActionReject {
		return reply{content: "No problem, I've dropped those picks."}
	}

	chosen := pending.Items
	if req.Action == chat.ActionApproveSelected {
		selected := make(map[string]bool, len(req.SelectedIDs))
		for _, id := range req.SelectedIDs {
			selected[id] = true
		}
		chosen = nil
		for _, item := range pending.Items {
			if selected[item.ID] {
				chosen = append(chosen, item)
			}
		}
	}

	if pending.Type == chat.InterruptContactSellers {
		return reply{content: fmt.Sprintf("Messages sent to %d sellers.", len(chosen))}
	}

	drafts := make([]chat.ProposalItem, 0, len(chosen))
	for _, item := range chosen {
		item.DraftMessage = fmt.Sprintf("Hi, is the %s still available?", strings.ToLower(item.Title))
		drafts = append(drafts, item)
	}
	data := &chat.InterruptData{
		Type:      chat.InterruptContactSellers,
		Items:     drafts,
		ItemCount: len(drafts),
		Message:   reviewMessage,
	}
	return reply{
		content:   fmt.Sprintf("Great, I've drafted messages to %d sellers.", len(drafts)),
		interrupt: data,
	}
}

// cumulative splits content into growing prefixes on word boundaries.
func cumulative(content string) []string {
	words := strings.Fields(content)
	if len(words) <= 1 {
		return []string{content}
	}

	const step = 4
	var out []string
	for i := step; i < len(words); i += step {
		out = append(out, strings.Join(words[:i], " "))
	}
	return append(out, content)
}
