package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Encoder writes events in the same framing the Decoder reads. Each frame is
// followed by a blank line and flushed when the writer supports it.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return e.writeFrame(string(data))
}

// Done writes the terminal token.
func (e *Encoder) Done() error {
	return e.writeFrame(doneToken)
}

func (e *Encoder) writeFrame(payload string) error {
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", framePrefix, payload); err != nil {
		return err
	}
	if f, ok := e.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
