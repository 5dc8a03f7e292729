// Package stream decodes and encodes the agent's line-oriented event stream.
//
// Each frame is a single line of the form "data: <json>" or "data: [DONE]".
// Every JSON frame carries a cumulative snapshot of the assistant turn, not a
// delta, so consumers replace state rather than append to it.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bowerhall/roomchat/internal/chat"
	"github.com/bowerhall/roomchat/internal/logger"
)

const (
	framePrefix = "data: "
	doneToken   = "[DONE]"
)

// Event is one decoded frame. Nil fields were absent from the frame.
type Event struct {
	Content   *string               `json:"content,omitempty"`
	ToolCalls []chat.ToolCall       `json:"tool_calls,omitempty"`
	ThreadID  string                `json:"thread_id,omitempty"`
	Products  []chat.ProductListing `json:"products,omitempty"`
	Interrupt *chat.InterruptData   `json:"interrupt,omitempty"`
}

type Decoder struct {
	reader  *bufio.Reader
	done    bool
	frames  int
	dropped int
	skipped int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the next event in arrival order. It returns io.EOF after the
// terminal token or when the stream ends. Read errors from the underlying
// reader are returned as-is.
func (d *Decoder) Next() (Event, error) {
	for {
		if d.done {
			return Event{}, io.EOF
		}

		line, err := d.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line != "" {
					// no terminator arrived, so the frame may be incomplete
					logger.Debug("stream ended mid-line", "bytes", len(line))
				}
				d.done = true
				return Event{}, io.EOF
			}
			return Event{}, err
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, framePrefix) {
			continue
		}

		payload := line[len(framePrefix):]
		if payload == doneToken {
			d.done = true
			return Event{}, io.EOF
		}

		root := gjson.Parse(payload)
		if !gjson.Valid(payload) || !root.IsObject() {
			d.dropped++
			logger.Debug("dropping malformed frame", "bytes", len(payload))
			continue
		}

		d.frames++
		return d.decode(root), nil
	}
}

// decode fills the event field by field. A field whose value does not fit
// its type is skipped on its own; the rest of the frame still applies.
func (d *Decoder) decode(root gjson.Result) Event {
	var ev Event

	var content string
	if d.field(root, "content", &content) {
		ev.Content = &content
	}

	var calls []chat.ToolCall
	if d.field(root, "tool_calls", &calls) {
		ev.ToolCalls = calls
	}

	d.field(root, "thread_id", &ev.ThreadID)

	var products []chat.ProductListing
	if d.field(root, "products", &products) {
		ev.Products = products
	}

	var interrupt chat.InterruptData
	if d.field(root, "interrupt", &interrupt) {
		ev.Interrupt = &interrupt
	}

	return ev
}

func (d *Decoder) field(root gjson.Result, key string, v any) bool {
	value := root.Get(key)
	if !value.Exists() || value.Type == gjson.Null {
		return false
	}
	if err := json.Unmarshal([]byte(value.Raw), v); err != nil {
		d.skipped++
		logger.Warn("skipping undecodable frame field", "field", key, "error", err)
		return false
	}
	return true
}

// Frames returns how many events have been decoded so far.
func (d *Decoder) Frames() int {
	return d.frames
}

// Dropped returns how many frames were skipped because their JSON did not parse.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Skipped returns how many fields of otherwise valid frames were ignored
// because their value had an unexpected shape.
func (d *Decoder) Skipped() int {
	return d.skipped
}
