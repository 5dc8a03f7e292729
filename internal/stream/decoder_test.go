package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestDecoderParsesFramesInOrder(t *testing.T) {
	input := "data: {\"content\":\"Hel\"}\n\n" +
		"data: {\"content\":\"Hello\",\"thread_id\":\"T1\"}\n\n" +
		"data: [DONE]\n\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	require.Len(t, events, 2)
	assert.Equal(t, "Hel", *events[0].Content)
	assert.Empty(t, events[0].ThreadID)
	assert.Equal(t, "Hello", *events[1].Content)
	assert.Equal(t, "T1", events[1].ThreadID)
}

func TestDecoderReassemblesFragmentedLines(t *testing.T) {
	input := "data: {\"content\":\"a cumulative snapshot\",\"tool_calls\":[{\"tool\":\"search_marketplace\",\"args\":{\"query\":\"sofa\"}}]}\n" +
		"data: [DONE]\n"

	d := NewDecoder(iotest.OneByteReader(strings.NewReader(input)))
	events := collect(t, d)

	require.Len(t, events, 1)
	assert.Equal(t, "a cumulative snapshot", *events[0].Content)
	require.Len(t, events[0].ToolCalls, 1)
	assert.Equal(t, "search_marketplace", events[0].ToolCalls[0].Tool)
	assert.Zero(t, d.Dropped())
}

func TestDecoderDropsMalformedFrames(t *testing.T) {
	input := "data: {\"content\":\"one\"}\n" +
		"data: {not json\n" +
		"data: 42\n" +
		"data: {\"content\":\"two\"}\n"

	d := NewDecoder(strings.NewReader(input))
	events := collect(t, d)

	require.Len(t, events, 2)
	assert.Equal(t, "one", *events[0].Content)
	assert.Equal(t, "two", *events[1].Content)
	assert.Equal(t, 2, d.Dropped())
	assert.Equal(t, 2, d.Frames())
}

func TestDecoderIgnoresNonFrameLines(t *testing.T) {
	input := ": keepalive\n" +
		"event: message\n" +
		"data:{\"content\":\"no space after prefix\"}\n" +
		"\r\n" +
		"data: {\"content\":\"kept\"}\r\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	require.Len(t, events, 1)
	assert.Equal(t, "kept", *events[0].Content)
}

func TestDecoderStopsAtDone(t *testing.T) {
	input := "data: [DONE]\n" +
		"data: {\"content\":\"after done\"}\n"

	d := NewDecoder(strings.NewReader(input))
	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)

	// stays terminated
	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderDoesNotParseUnterminatedLine(t *testing.T) {
	input := "data: {\"content\":\"complete\"}\n" +
		"data: {\"content\":\"trunc"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	require.Len(t, events, 1)
	assert.Equal(t, "complete", *events[0].Content)
}

func TestDecoderAbsentFieldsAreNil(t *testing.T) {
	input := "data: {\"thread_id\":\"T9\"}\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	require.Len(t, events, 1)
	assert.Nil(t, events[0].Content)
	assert.Nil(t, events[0].ToolCalls)
	assert.Nil(t, events[0].Products)
	assert.Nil(t, events[0].Interrupt)
}

func TestDecoderParsesInterrupt(t *testing.T) {
	input := `data: {"content":"{\"status\":\"pending_approval\"}","interrupt":{"type":"shortlist","items":[{"id":"p1","title":"Oak table","price":120,"source":"ebay","url":"https://example.com/p1"}],"item_count":1,"message":"Please review the proposed items."}}` + "\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	require.Len(t, events, 1)
	require.NotNil(t, events[0].Interrupt)
	assert.EqualValues(t, "shortlist", events[0].Interrupt.Type)
	assert.Equal(t, []string{"p1"}, events[0].Interrupt.ItemIDs())
}

func TestDecoderReturnsReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("data: {\"content\":\"x\"}\n"), iotest.ErrReader(boom))

	d := NewDecoder(r)
	_, err := d.Next()
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, boom)
}

func TestEncoderRoundTripsThroughDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	content := "Here are some picks [COLOR_PALETTE: #aabbcc]"
	require.NoError(t, enc.Encode(Event{Content: &content, ThreadID: "T2"}))
	require.NoError(t, enc.Done())

	assert.True(t, strings.HasSuffix(buf.String(), "data: [DONE]\n\n"))

	events := collect(t, NewDecoder(&buf))
	require.Len(t, events, 1)
	assert.Equal(t, content, *events[0].Content)
	assert.Equal(t, "T2", events[0].ThreadID)
}

func TestDecoderSkipsOnlyTheBadField(t *testing.T) {
	input := `data: {"content":"Here are my picks","thread_id":"T1","products":"none","interrupt":{"type":"shortlist","items":"later"}}` + "\n"

	d := NewDecoder(strings.NewReader(input))
	events := collect(t, d)

	require.Len(t, events, 1)
	ev := events[0]
	require.NotNil(t, ev.Content)
	assert.Equal(t, "Here are my picks", *ev.Content)
	assert.Equal(t, "T1", ev.ThreadID)
	assert.Nil(t, ev.Products)
	assert.Nil(t, ev.Interrupt)
	assert.Equal(t, 2, d.Skipped())
	assert.Equal(t, 0, d.Dropped())
}

func TestDecoderAcceptsTextPrices(t *testing.T) {
	input := `data: {"content":"{}","thread_id":"T1","interrupt":{"type":"shortlist","items":[{"id":"p1","title":"Oak table","price":"$120","source":"ebay","url":"u"}],"item_count":1,"message":"Please review the proposed items."}}` + "\n"

	d := NewDecoder(strings.NewReader(input))
	events := collect(t, d)

	require.Len(t, events, 1)
	require.NotNil(t, events[0].Interrupt)
	assert.InDelta(t, 120, float64(events[0].Interrupt.Items[0].Price), 0.001)
	assert.Equal(t, 0, d.Skipped())
}

func TestDecoderDropsNonObjectFrames(t *testing.T) {
	input := "data: [1,2]\n" + "data: \"text\"\n" + "data: {\"content\":\"ok\"}\n"

	d := NewDecoder(strings.NewReader(input))
	events := collect(t, d)

	require.Len(t, events, 1)
	assert.Equal(t, 2, d.Dropped())
}
