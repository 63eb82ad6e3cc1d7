package parser

import (
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"
)

// slowParser simulates a parser that can't keep up with input.
type slowParser struct {
	delay time.Duration
	mu    sync.Mutex
	lines []string
}

func (p *slowParser) ParseLine(line string) {
	time.Sleep(p.delay)
	p.mu.Lock()
	p.lines = append(p.lines, line)
	p.mu.Unlock()
}

type collectParser struct {
	mu    sync.Mutex
	lines []string
}

func (p *collectParser) ParseLine(line string) {
	p.mu.Lock()
	p.lines = append(p.lines, line)
	p.mu.Unlock()
}

func TestPipeline_Drain(t *testing.T) {
	input := "first\nsecond\r\nthird\rfourth"
	parser := &collectParser{}

	p := NewPipeline(0)
	p.Drain(strings.NewReader(input), parser)

	want := []string{"first", "second", "third", "fourth"}
	if !reflect.DeepEqual(parser.lines, want) {
		t.Errorf("lines = %q, want %q", parser.lines, want)
	}
	read, dropped, parsed := p.Stats()
	if read != 4 || dropped != 0 || parsed != 4 {
		t.Errorf("Stats = %d/%d/%d", read, dropped, parsed)
	}
}

func TestPipeline_PartialChunks(t *testing.T) {
	// One byte per Read: lines must still be reassembled across chunks.
	input := "lavfi.astats.1.Peak_level=-4.5\nlavfi.astats.2.Peak_level=-6.0\r\n"
	parser := &collectParser{}

	NewPipeline(10).Drain(iotest.OneByteReader(strings.NewReader(input)), parser)

	want := []string{"lavfi.astats.1.Peak_level=-4.5", "lavfi.astats.2.Peak_level=-6.0"}
	if !reflect.DeepEqual(parser.lines, want) {
		t.Errorf("lines = %q, want %q", parser.lines, want)
	}
}

func TestPipeline_DropsUnderPressure(t *testing.T) {
	p := NewPipeline(5)
	parser := &slowParser{delay: 5 * time.Millisecond}

	p.Drain(strings.NewReader(strings.Repeat("line\n", 100)), parser)

	read, dropped, parsed := p.Stats()
	if read != 100 {
		t.Errorf("read = %d, want 100", read)
	}
	if dropped == 0 {
		t.Error("expected drops with a slow parser and small buffer")
	}
	if parsed+dropped != read {
		t.Errorf("parsed(%d) + dropped(%d) != read(%d)", parsed, dropped, read)
	}
	if p.DropRate() <= 0 {
		t.Errorf("DropRate = %v", p.DropRate())
	}
}

func TestPipeline_OverlongLineStillDrains(t *testing.T) {
	long := strings.Repeat("x", maxLineSize+10)
	r := strings.NewReader("ok\n" + long + "\nafter\n")

	p := NewPipeline(0)
	p.Drain(r, &collectParser{})

	if r.Len() != 0 {
		t.Errorf("%d bytes left unread", r.Len())
	}
}

func TestPipeline_EmptyInput(t *testing.T) {
	p := NewPipeline(0)
	p.Drain(strings.NewReader(""), &collectParser{})
	if read, _, _ := p.Stats(); read != 0 {
		t.Errorf("read = %d", read)
	}
	if p.DropRate() != 0 {
		t.Errorf("DropRate = %v", p.DropRate())
	}
}

func TestPipeline_DrainWithPipe(t *testing.T) {
	pr, pw := io.Pipe()
	parser := &collectParser{}
	p := NewPipeline(0)

	done := make(chan struct{})
	go func() {
		p.Drain(pr, parser)
		close(done)
	}()

	pw.Write([]byte("lavfi.astats.1.Pe"))
	pw.Write([]byte("ak_level=-1.5\n"))
	pw.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after writer closed")
	}

	if len(parser.lines) != 1 || parser.lines[0] != "lavfi.astats.1.Peak_level=-1.5" {
		t.Errorf("lines = %q", parser.lines)
	}
}

func TestLineParserFunc(t *testing.T) {
	var got string
	LineParserFunc(func(l string) { got = l }).ParseLine("x")
	if got != "x" {
		t.Errorf("got %q", got)
	}
}
