// Package stream ingests chunked assistant responses.
//
// The wire format is line oriented. Every meaningful line has the form
//
//	data: {"text":"..."}
//
// and a response ends normally with the line
//
//	data: [DONE]
//
// Any other line is ignored.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	dataPrefix = "data: "
	// DoneSentinel is the payload marking the normal end of a response.
	DoneSentinel = "[DONE]"
)

// ErrMalformedFrame marks a data line whose payload is not valid JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one decoded data line.
type Frame struct {
	Text string
	Done bool
}

type payload struct {
	Text *string `json:"text"`
}

// ParseLine decodes a single line without its line terminator. ok is false
// for lines that are not data lines.
func ParseLine(line string) (frame Frame, ok bool, err error) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return Frame{}, false, nil
	}
	raw := line[len(dataPrefix):]
	if strings.TrimSpace(raw) == DoneSentinel {
		return Frame{Done: true}, true, nil
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Frame{}, true, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if p.Text != nil {
		frame.Text = *p.Text
	}
	return frame, true, nil
}

// FormatFrame renders text as a data line, including the trailing newline.
func FormatFrame(text string) (string, error) {
	b, err := json.Marshal(payload{Text: &text})
	if err != nil {
		return "", err
	}
	return dataPrefix + string(b) + "\n", nil
}

// FormatDone renders the sentinel line.
func FormatDone() string {
	return dataPrefix + DoneSentinel + "\n"
}
