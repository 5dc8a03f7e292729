// Package extract derives display artifacts from a turn's cumulative content
// and tool-call snapshot. Every function is pure: it re-scans the full
// snapshot, so a marker split across stream fragments is found once the
// snapshot contains all of it.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/logger"
)

var paletteRe = regexp.MustCompile(`\[COLOR_PALETTE:\s*(#[0-9a-fA-F]{6}(?:\s*,\s*#[0-9a-fA-F]{6})*)\]`)

var errInvalidResult = errors.New("tool result is not valid json")

// Palette returns the hex colors of the first palette marker in content, in
// order, or nil when there is none.
func Palette(content string) []string {
	match := paletteRe.FindStringSubmatch(content)
	if match == nil {
		return nil
	}

	parts := strings.Split(match[1], ",")
	colors := make([]string, 0, len(parts))
	for _, p := range parts {
		colors = append(colors, strings.TrimSpace(p))
	}
	return colors
}

// Display returns the user-facing text for content: palette markers removed
// and surrounding whitespace trimmed. When an interrupt is attached and what
// remains is a raw JSON payload, nothing is shown.
func Display(content string, hasInterrupt bool) string {
	text := strings.TrimSpace(paletteRe.ReplaceAllString(content, ""))
	if hasInterrupt && strings.HasPrefix(text, "{") {
		return ""
	}
	return text
}

// Products concatenates the product arrays of every marketplace search call,
// in call order. Results that fail to parse contribute nothing.
func Products(calls []chat.ToolCall) []chat.ProductListing {
	var products []chat.ProductListing
	for i, tc := range calls {
		if tc.Tool != chat.SearchTool {
			continue
		}

		found, err := parseProducts(tc.Result)
		if err != nil {
			logger.Debug("skipping unparsable tool result", "tool", tc.Tool, "index", i, "error", err)
			continue
		}
		products = append(products, found...)
	}
	return products
}

// parseProducts accepts a result that is either a JSON object or a JSON
// string holding an encoded object.
func parseProducts(raw json.RawMessage) ([]chat.ProductListing, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, errInvalidResult
	}

	result := gjson.ParseBytes(raw)
	if result.Type == gjson.String {
		if !gjson.Valid(result.Str) {
			return nil, errInvalidResult
		}
		result = gjson.Parse(result.Str)
	}

	list := result.Get("products")
	if !list.IsArray() {
		return nil, nil
	}

	var products []chat.ProductListing
	if err := json.Unmarshal([]byte(list.Raw), &products); err != nil {
		return nil, err
	}
	return products, nil
}

type ToolSummary struct {
	Tool         string
	Args         string
	ProductCount int
}

// Summaries describes each tool call in order, for display next to a message.
func Summaries(calls []chat.ToolCall) []ToolSummary {
	summaries := make([]ToolSummary, 0, len(calls))
	for _, tc := range calls {
		s := ToolSummary{Tool: tc.Tool, Args: compact(tc.Args)}
		if tc.Tool == chat.SearchTool {
			if found, err := parseProducts(tc.Result); err == nil {
				s.ProductCount = len(found)
			}
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
