package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
)

// ErrCanceled is returned when the consumer stops an ingestion. It is never
// reported as a completed response.
var ErrCanceled = errors.New("stream canceled")

// TransportError wraps a failure of the underlying source.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "stream transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Ingester turns a chunked response into text deltas and a final string.
type Ingester struct {
	logger *logrus.Entry
}

// NewIngester creates an ingester. logger may be nil.
func NewIngester(logger *logrus.Entry) *Ingester {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &Ingester{logger: logger.WithField("component", "stream")}
}

// Ingest reads src until the sentinel, the end of the source, a source
// failure, or cancellation of ctx, calling onDelta with each non-empty text
// fragment as it arrives. src is closed on every path.
//
// Reaching the end of src without a sentinel still counts as success. A
// source failure returns a *TransportError and cancellation returns an error
// matching ErrCanceled; in both cases the text gathered so far is returned
// alongside the error.
func (in *Ingester) Ingest(ctx context.Context, src io.ReadCloser, onDelta func(string)) (string, error) {
	var closeOnce sync.Once
	closeSrc := func() { closeOnce.Do(func() { _ = src.Close() }) }
	defer closeSrc()

	// Closing the source is what unblocks a pending Read on cancellation.
	stop := context.AfterFunc(ctx, closeSrc)
	defer stop()

	lines := bufio.NewReader(unicode.UTF8.NewDecoder().Reader(src))
	var acc strings.Builder
	frames := 0

	for {
		if err := ctx.Err(); err != nil {
			return acc.String(), fmt.Errorf("%w: %v", ErrCanceled, err)
		}

		line, readErr := lines.ReadString('\n')
		if line != "" {
			if err := ctx.Err(); err != nil {
				return acc.String(), fmt.Errorf("%w: %v", ErrCanceled, err)
			}
			frame, ok, err := ParseLine(strings.TrimSuffix(line, "\n"))
			switch {
			case !ok:
			case err != nil:
				in.logger.WithError(err).WithField("line", truncate(line, 120)).Debug("Skipping malformed frame")
			case frame.Done:
				in.logger.WithField("frames", frames).Debug("Stream completed")
				return acc.String(), nil
			case frame.Text != "":
				frames++
				acc.WriteString(frame.Text)
				if onDelta != nil {
					onDelta(frame.Text)
				}
			}
		}

		if readErr == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return acc.String(), fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		if errors.Is(readErr, io.EOF) {
			in.logger.WithField("frames", frames).Debug("Stream ended without sentinel")
			return acc.String(), nil
		}
		return acc.String(), &TransportError{Err: readErr}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
