package stream

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/strands-bridge/internal/event"
)

func TestReader_Lines(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "a\n", []string{"a"}},
		{"two", "a\nb\n", []string{"a", "b"}},
		{"partial_dropped", "a\nb", []string{"a"}},
		{"only_partial", "no newline", nil},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"blank_lines", "\n\nx\n", []string{"", "", "x"}},
		{"cr_inside", "a\rb\n", []string{"a\rb"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := event.NewRecorder()
			NewReader(strings.NewReader(tc.input), event.CLIOutput, rec, nil).Run()
			got := rec.Named(event.CLIOutput)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("lines = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReader_EmitsEachLineInOrder(t *testing.T) {
	rec := event.NewRecorder()
	r := NewReader(strings.NewReader("one\ntwo\nthree\npartial"), event.CLIOutput, rec, nil)

	var seen []string
	r.OnLine(func(line string) { seen = append(seen, line) })
	r.Run()

	want := []string{"one", "two", "three"}
	if got := rec.Named(event.CLIOutput); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %q, want %q", got, want)
	}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("handler saw %q, want %q", seen, want)
	}

	bytesRead, lines, panics := r.Stats()
	if lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}
	if bytesRead != int64(len("one\ntwo\nthree\n")) {
		t.Errorf("bytes = %d", bytesRead)
	}
	if panics != 0 {
		t.Errorf("panics = %d", panics)
	}

	select {
	case <-r.Done():
	default:
		t.Error("Done should be closed after Run")
	}
}

func TestReader_UsesEventName(t *testing.T) {
	rec := event.NewRecorder()
	NewReader(strings.NewReader("oops\n"), event.CLIError, rec, nil).Run()

	if rec.Count(event.CLIOutput) != 0 {
		t.Error("stderr lines must not be emitted as cli-output")
	}
	if got := rec.Named(event.CLIError); len(got) != 1 || got[0] != "oops" {
		t.Errorf("cli-error = %q", got)
	}
}

func TestReader_PanickingSinkIsRecovered(t *testing.T) {
	calls := 0
	sink := event.EmitterFunc(func(string, any) {
		calls++
		panic("sink unavailable")
	})

	r := NewReader(strings.NewReader("a\nb\nc\n"), event.CLIOutput, sink, nil)
	r.Run()

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if _, lines, panics := r.Stats(); lines != 3 || panics != 3 {
		t.Errorf("lines=%d panics=%d, want 3/3", lines, panics)
	}
}

type errAfterReader struct {
	data   string
	err    error
	served bool
}

func (e *errAfterReader) Read(p []byte) (int, error) {
	if !e.served {
		e.served = true
		return copy(p, e.data), nil
	}
	return 0, e.err
}

func TestReader_ReadErrorEndsStream(t *testing.T) {
	rec := event.NewRecorder()
	src := &errAfterReader{data: "ok\nhalf", err: errors.New("pipe broken")}
	r := NewReader(src, event.CLIOutput, rec, nil)

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after read error")
	}

	if got := rec.Named(event.CLIOutput); len(got) != 1 || got[0] != "ok" {
		t.Errorf("events = %q, want [ok]", got)
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestReader_ClosesSource(t *testing.T) {
	src := &closeTracker{Reader: strings.NewReader("x\n")}
	NewReader(src, event.CLIOutput, nil, nil).Run()
	if !src.closed {
		t.Error("reader should close its source at end-of-stream")
	}
}

func TestReader_OversizedLineDoesNotEndStream(t *testing.T) {
	rec := event.NewRecorder()
	huge := strings.Repeat("x", 2*maxLineSize)
	r := NewReader(strings.NewReader("before\n"+huge+"\nafter\n"), event.CLIOutput, rec, nil)
	r.Run()

	got := rec.Named(event.CLIOutput)
	if len(got) != 3 {
		t.Fatalf("got %d lines, want 3", len(got))
	}
	if got[0] != "before" || got[2] != "after" {
		t.Errorf("first/last = %q/%q, want before/after", got[0], got[2])
	}
	if len(got[1]) != maxLineSize {
		t.Errorf("oversized line length = %d, want %d", len(got[1]), maxLineSize)
	}
	if bytesRead, lines, _ := r.Stats(); lines != 3 || bytesRead != int64(len(huge)+len("before\n\nafter\n")) {
		t.Errorf("stats = %d bytes %d lines", bytesRead, lines)
	}
}

func TestReader_LongLine(t *testing.T) {
	rec := event.NewRecorder()
	long := strings.Repeat("x", 200*1024)
	NewReader(strings.NewReader(long+"\nafter\n"), event.CLIOutput, rec, nil).Run()

	got := rec.Named(event.CLIOutput)
	if len(got) != 2 || len(got[0]) != len(long) || got[1] != "after" {
		t.Errorf("got %d lines", len(got))
	}
}
