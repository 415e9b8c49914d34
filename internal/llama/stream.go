package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// Stream is a pull-based iterator over a line-delimited JSON completion
// stream. It is lazy, finite and not restartable: one Stream corresponds to
// one open request. A transport chunk boundary almost never aligns with a
// JSON-object boundary, so a trailing incomplete line is held in buf until a
// later read completes it.
//
// Usage follows the bufio.Scanner shape:
//
//	st, err := client.CompleteStream(ctx, prompt, params)
//	defer st.Close()
//	for st.Next() {
//	    emit(st.Fragment())
//	}
//	return st.Err()
type Stream struct {
	body      io.ReadCloser
	buf       []byte // unconsumed bytes, including any partial trailing line
	chunk     []byte // scratch for transport reads
	cur       string
	err       error
	done      bool
	eof       bool
	stopAfter bool // a line carried both content and stop
	closed    bool
	logFn     func(event, line string)
}

// CompleteStream opens a streaming completion. The returned Stream must be
// closed by the caller; cancelling ctx releases the underlying connection but
// sends nothing to the server, which finishes the response on its own.
func (c *Client) CompleteStream(ctx context.Context, prompt string, p CompletionParams) (*Stream, error) {
	resp, err := c.postCompletion(ctx, prompt, p, true)
	if err != nil {
		return nil, err
	}
	logger := c.logger
	return &Stream{
		body:  resp.Body,
		chunk: make([]byte, 4096),
		logFn: func(event, line string) {
			logger.Debug().Str("event", event).Str("line", line).Msg("stream line skipped")
		},
	}, nil
}

// Next advances to the next fragment. It returns false at the end of the
// sequence; check Err to distinguish a clean stop from a failure.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	if s.stopAfter {
		s.finish(nil)
		return false
	}
	for {
		line, ok := s.takeLine()
		if ok {
			if s.handleLine(line) {
				return true
			}
			if s.done {
				return false
			}
			continue
		}
		if s.eof {
			// Flush an unterminated final line before closing out.
			if len(s.buf) > 0 {
				last := string(s.buf)
				s.buf = nil
				if s.handleLine(last) {
					return true
				}
				if s.done {
					return false
				}
			}
			s.finish(nil)
			return false
		}
		n, err := s.body.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				continue
			}
			s.finish(err)
			return false
		}
	}
}

// Fragment returns the text yielded by the last successful Next.
func (s *Stream) Fragment() string { return s.cur }

// Err returns the terminal error, nil after a clean stop.
func (s *Stream) Err() error { return s.err }

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.done = true
	if s.closed {
		return nil
	}
	s.closed = true
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// takeLine extracts one complete line from buf. Returns false when buf holds
// only a partial line.
func (s *Stream) takeLine() (string, bool) {
	i := bytes.IndexByte(s.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := string(s.buf[:i])
	s.buf = s.buf[i+1:]
	return line, true
}

// streamChunk is one parsed line of the stream.
type streamChunk struct {
	Content string          `json:"content"`
	Stop    bool            `json:"stop"`
	Error   json.RawMessage `json:"error"`
}

var embeddedErrorPattern = regexp.MustCompile(`"error"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// handleLine processes one completed line. Returns true when a fragment was
// yielded; may also mark the stream done (with or without error).
func (s *Stream) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	// Some server builds wrap lines in SSE framing.
	if strings.HasPrefix(strings.ToLower(line), "data:") {
		line = strings.TrimSpace(line[len("data:"):])
	}
	if line == "" || line == "[DONE]" {
		if line == "[DONE]" {
			s.finish(nil)
		}
		return false
	}
	var chk streamChunk
	if err := json.Unmarshal([]byte(line), &chk); err != nil {
		// Best-effort salvage before skipping: an embedded error aborts, a
		// literal turn-end marker ends the sequence cleanly.
		if m := embeddedErrorPattern.FindStringSubmatch(line); m != nil {
			s.finish(ErrStreamProtocol(m[1]))
			return false
		}
		if strings.Contains(line, TurnEnd) {
			s.finish(nil)
			return false
		}
		streamMalformedLines.Inc()
		if s.logFn != nil {
			s.logFn("malformed_line", line)
		}
		return false
	}
	if len(chk.Error) > 0 && string(chk.Error) != "null" {
		s.finish(ErrStreamProtocol(errorText(chk.Error)))
		return false
	}
	if chk.Content != "" {
		s.cur = chk.Content
		streamFragments.Inc()
		if chk.Stop {
			s.stopAfter = true
		}
		return true
	}
	if chk.Stop {
		s.finish(nil)
	}
	return false
}

func (s *Stream) finish(err error) {
	if s.done {
		return
	}
	s.done = true
	if s.err == nil {
		s.err = err
	}
	if !s.closed && s.body != nil {
		s.closed = true
		_ = s.body.Close()
	}
}

// errorText renders a server error value, which may be a bare string or an
// object carrying a message field.
func errorText(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
