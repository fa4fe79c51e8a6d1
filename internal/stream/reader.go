// Package stream forwards subprocess output pipes to an event sink, one
// event per complete line.
package stream

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/randomizedcoder/strands-bridge/internal/event"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineSize       = 1024 * 1024
)

// LineHandler is called for every forwarded line, after the event was
// emitted. Used for tails and counters.
type LineHandler func(line string)

// Reader reads lines from a pipe and emits each complete line under a
// fixed event name.
//
// A final partial line with no terminator is dropped. A line longer than
// maxLineSize is emitted truncated and the rest of it is skipped. A read
// error ends the stream; whatever is left in the pipe is discarded so the
// writer never blocks.
type Reader struct {
	reader    io.Reader
	eventName string
	emitter   event.Emitter
	logger    *slog.Logger
	onLine    LineHandler

	done chan struct{}

	bytesRead atomic.Int64
	linesRead atomic.Int64
	panics    atomic.Int64
}

// NewReader creates a reader for one stream. eventName is the event every
// line is emitted under (event.CLIOutput or event.CLIError).
func NewReader(r io.Reader, eventName string, emitter event.Emitter, logger *slog.Logger) *Reader {
	if emitter == nil {
		emitter = event.Discard
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reader{
		reader:    r,
		eventName: eventName,
		emitter:   emitter,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// OnLine registers a handler called after each emitted line. Must be set
// before Run.
func (p *Reader) OnLine(h LineHandler) {
	p.onLine = h
}

// Run reads until end-of-stream. Closes the underlying reader if it is an
// io.Closer and closes Done on exit.
func (p *Reader) Run() {
	defer close(p.done)
	if c, ok := p.reader.(io.Closer); ok {
		defer c.Close()
	}

	br := bufio.NewReaderSize(p.reader, initialLineBuffer)
	var (
		line      []byte
		consumed  int
		truncated bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		consumed += len(chunk)

		switch {
		case err == nil:
			line, truncated = appendBounded(line, chunk[:len(chunk)-1], truncated)
			if !truncated {
				line = dropCR(line)
			}
			p.bytesRead.Add(int64(consumed))
			p.linesRead.Add(1)
			p.forward(string(line))
			line, consumed, truncated = line[:0], 0, false

		case errors.Is(err, bufio.ErrBufferFull):
			line, truncated = appendBounded(line, chunk, truncated)

		default:
			if !errors.Is(err, io.EOF) {
				p.logger.Debug("stream_read_error",
					"event", p.eventName,
					"lines", p.linesRead.Load(),
					"error", err,
				)
				_, _ = io.Copy(io.Discard, p.reader)
			}
			return
		}
	}
}

// appendBounded appends data to line up to maxLineSize and reports whether
// anything was cut.
func appendBounded(line, data []byte, truncated bool) ([]byte, bool) {
	if truncated {
		return line, true
	}
	if room := maxLineSize - len(line); len(data) > room {
		return append(line, data[:room]...), true
	}
	return append(line, data...), false
}

// forward emits one line. A panicking sink is recovered so it can never
// stop the reader.
func (p *Reader) forward(line string) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Debug("stream_emit_panic", "event", p.eventName, "panic", r)
		}
	}()
	p.emitter.Emit(p.eventName, line)
	if p.onLine != nil {
		p.onLine(line)
	}
}

// Done is closed when Run returns.
func (p *Reader) Done() <-chan struct{} {
	return p.done
}

// EventName returns the event name lines are emitted under.
func (p *Reader) EventName() string {
	return p.eventName
}

// Stats returns (bytesRead, linesRead, emitPanics).
func (p *Reader) Stats() (bytesRead int64, linesRead int64, emitPanics int64) {
	return p.bytesRead.Load(), p.linesRead.Load(), p.panics.Load()
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}
