// Package streaming implements the incremental parser that recovers
// complete UpstreamStreamChunk objects from a fragmented byte stream
// shaped as a single concatenated JSON array.
package streaming

import (
	"encoding/json"
	"log/slog"

	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
)

const (
	initialBufferCapacity = 8 * 1024
	shrinkThreshold       = 64 * 1024
)

// Parser extracts gemini.StreamChunk values from arbitrarily split byte
// chunks. It is owned exclusively by one request goroutine for the
// lifetime of that request; it is not safe for concurrent use.
type Parser struct {
	buf          []byte
	arrayStarted bool
	logger       *slog.Logger
}

// New returns a Parser ready to receive the first chunk.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		buf:    make([]byte, 0, initialBufferCapacity),
		logger: logger.With("component", "streaming.parser"),
	}
}

// Feed appends chunk to the internal buffer and extracts every complete
// object it can find. Malformed objects are logged and skipped; the
// stream is never aborted by a single bad object (spec §4.4, §7
// InvalidUpstreamChunk, §8.3 parser resilience).
func (p *Parser) Feed(chunk []byte) []gemini.StreamChunk {
	p.buf = append(p.buf, chunk...)
	return p.extractObjects()
}

func (p *Parser) extractObjects() []gemini.StreamChunk {
	var out []gemini.StreamChunk

	for {
		p.skipNoise()
		if len(p.buf) == 0 {
			break
		}

		end, ok := p.findObjectBoundary()
		if !ok {
			// Incomplete object: wait for more bytes.
			break
		}

		objBytes := p.buf[:end]
		p.buf = p.buf[end:]

		var chunk gemini.StreamChunk
		if err := json.Unmarshal(objBytes, &chunk); err != nil {
			p.logger.Warn("skipping malformed upstream object",
				"error", err, "bytes", string(objBytes))
			continue
		}
		out = append(out, chunk)
	}

	return out
}

// skipNoise advances past array punctuation and whitespace that never
// belongs to an object: '[', ',', ']', and ASCII whitespace.
func (p *Parser) skipNoise() {
	i := 0
	for i < len(p.buf) {
		switch p.buf[i] {
		case '[':
			p.arrayStarted = true
			i++
		case ',', ']', ' ', '\t', '\n', '\r':
			i++
		default:
			p.buf = p.buf[i:]
			return
		}
	}
	p.buf = p.buf[i:]
}

// findObjectBoundary scans from the start of the buffer (assumed to be
// the first byte of a JSON object, i.e. '{') and returns the exclusive
// end offset of the first complete top-level object, tracking brace
// depth and string/escape state. It returns ok=false if the buffer ends
// mid-object.
func (p *Parser) findObjectBoundary() (int, bool) {
	if len(p.buf) == 0 || p.buf[0] != '{' {
		return 0, false
	}

	depth := 0
	inString := false
	escaped := false

	for i, b := range p.buf {
		if escaped {
			escaped = false
			continue
		}

		if inString {
			switch b {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}

	return 0, false
}

// Reset clears the parser's buffered state, applying the shrink policy
// from spec §4.4: if the current capacity exceeds 64 KiB, shrink back to
// the 8 KiB starting capacity; otherwise reuse the buffer in place.
func (p *Parser) Reset() {
	if cap(p.buf) > shrinkThreshold {
		p.buf = make([]byte, 0, initialBufferCapacity)
		return
	}
	p.buf = p.buf[:0]
}

// Pending returns the number of unconsumed bytes currently buffered,
// useful for diagnostics/tests.
func (p *Parser) Pending() int { return len(p.buf) }

// ArrayStarted reports whether the opening '[' of the array has been
// observed yet.
func (p *Parser) ArrayStarted() bool { return p.arrayStarted }
