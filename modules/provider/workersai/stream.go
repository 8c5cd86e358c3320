package workersai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/telemetry"
)

// sseMaxLineSize is the maximum SSE line size (512 KiB). Long fragments can
// exceed the default 64 KiB bufio.Scanner limit.
const sseMaxLineSize = 512 * 1024

// event is one server-sent event. Multi-line data is joined with "\n".
type event struct {
	name string
	data string
}

// eventReader splits an SSE body into events.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), sseMaxLineSize)
	return &eventReader{scanner: scanner}
}

// next returns the next event, or io.EOF once the body ends cleanly. A
// trailing event not followed by a blank line is still returned.
func (r *eventReader) next() (event, error) {
	var (
		ev      event
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Blank line: event boundary.
		if line == "" {
			if !pending {
				continue
			}
			ev.data = strings.Join(data, "\n")
			return ev, nil
		}

		// Comment.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.name = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		}
	}
	if err := r.scanner.Err(); err != nil {
		return event{}, err
	}
	if pending {
		ev.data = strings.Join(data, "\n")
		return ev, nil
	}
	return event{}, io.EOF
}

// streamChunk is the JSON data of a fragment event.
type streamChunk struct {
	Response string       `json:"response"`
	Errors   []apiMessage `json:"errors"`
}

// streamState is the lifecycle of one streamed completion.
type streamState int

const (
	stateOpen streamState = iota
	stateStreaming
	stateDone
	stateFailed
)

func (s streamState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateStreaming:
		return "streaming"
	case stateDone:
		return "done"
	default:
		return "failed"
	}
}

// streamSession holds the state of one streamed call. It is not shared
// between calls. Every terminal transition goes through settle.
type streamSession struct {
	state      streamState
	text       strings.Builder
	onProgress provider.ProgressFunc
	pace       time.Duration
	result     string
	err        error
}

func newStreamSession(onProgress provider.ProgressFunc, pace time.Duration) *streamSession {
	return &streamSession{state: stateOpen, onProgress: onProgress, pace: pace}
}

const streamOp = "workersai: chat completion stream"

// stream performs a streamed run and reassembles the reply.
func (c *Client) stream(ctx context.Context, s *settings, payload provider.ChatPayload, onProgress provider.ProgressFunc) (string, error) {
	sess := newStreamSession(onProgress, s.pace)

	resp, err := c.doRequest(ctx, s, payload, streamOp)
	if err != nil {
		return sess.fail(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return sess.fail(protocolError(streamOp, resp.StatusCode, readErrorBody(resp.Body), nil))
	}
	// A 200 that is not an event stream (typically a JSON error envelope)
	// would otherwise read as an empty stream closed without the sentinel.
	if ct := resp.Header.Get("Content-Type"); !isEventStream(ct) {
		perr := protocolError(streamOp, resp.StatusCode, readErrorBody(resp.Body), nil)
		if perr.Err == nil {
			perr.Err = fmt.Errorf("unexpected content type %q", ct)
		}
		return sess.fail(perr)
	}

	telemetry.ActiveStreams.Inc()
	defer telemetry.ActiveStreams.Dec()

	sess.state = stateStreaming
	return sess.consume(ctx, resp.Body)
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// consume reads events until the stream settles.
func (s *streamSession) consume(ctx context.Context, body io.Reader) (string, error) {
	events := newEventReader(body)
	for s.state == stateStreaming {
		if err := ctx.Err(); err != nil {
			return s.fail(cancelledError(streamOp, err))
		}

		ev, err := events.next()
		switch {
		case errors.Is(err, io.EOF):
			// Closed without the sentinel: the text so far is the reply.
			return s.succeed(ctx)
		case err != nil:
			return s.fail(transportError(ctx, streamOp, provider.ErrStream, err))
		}

		done, err := s.handle(ctx, ev)
		if err != nil {
			return s.fail(err)
		}
		if done {
			return s.succeed(ctx)
		}
	}
	return s.result, s.err
}

// handle applies one event. It reports whether the stream is complete.
func (s *streamSession) handle(ctx context.Context, ev event) (bool, error) {
	if ev.name == "ping" || ev.data == "" {
		return false, nil
	}
	data := strings.TrimSpace(ev.data)
	if data == provider.DoneSentinel {
		return true, nil
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return false, &provider.Error{Kind: provider.ErrStream, Op: streamOp, Err: fmt.Errorf("decoding event: %w", err)}
	}
	if len(chunk.Errors) > 0 {
		return false, &provider.Error{Kind: provider.ErrStream, Op: streamOp, Err: joinMessages(chunk.Errors)}
	}
	if chunk.Response == "" {
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, cancelledError(streamOp, err)
	}
	s.emit(chunk.Response)
	s.text.WriteString(chunk.Response)
	telemetry.StreamFragmentsTotal.Inc()

	return false, s.wait(ctx)
}

// wait pauses for the pacing interval or until ctx ends.
func (s *streamSession) wait(ctx context.Context) error {
	if s.pace <= 0 {
		return nil
	}
	timer := time.NewTimer(s.pace)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return cancelledError(streamOp, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (s *streamSession) emit(fragment string) {
	if s.onProgress != nil {
		s.onProgress(fragment)
	}
}

// succeed settles the session as DONE and delivers the sentinel, unless
// the caller gave up first.
func (s *streamSession) succeed(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return s.fail(cancelledError(streamOp, err))
	}
	if !s.settle(stateDone, s.text.String(), nil) {
		return s.result, s.err
	}
	s.emit(provider.DoneSentinel)
	return s.result, s.err
}

// fail settles the session as FAILED. No partial text is returned.
func (s *streamSession) fail(err error) (string, error) {
	s.settle(stateFailed, "", err)
	return s.result, s.err
}

// settle moves the session to a terminal state. Only the first call has
// any effect; it reports whether this call was it.
func (s *streamSession) settle(to streamState, result string, err error) bool {
	if s.state == stateDone || s.state == stateFailed {
		return false
	}
	s.state = to
	s.result = result
	s.err = err
	return true
}
