// Package parser turns the decoder's diagnostic stream into telemetry.
//
// The decoder writes statistics to stderr once per second. If stderr is not
// drained promptly the decoder blocks, stops reading stdin, and the network
// reader stalls behind it. The pipeline therefore splits the work:
//
//	Layer 1 (Reader): splits lines and queues them, drops if the queue is full
//	Layer 2 (Parser): consumes queued lines at its own pace
package parser

import (
	"bufio"
	"bytes"
	"io"
	"sync"
	"sync/atomic"
)

const (
	// DefaultBufferSize is the line queue length between reader and parser.
	DefaultBufferSize = 1000

	maxLineSize = 1024 * 1024
)

// LineParser consumes one line of decoder output.
type LineParser interface {
	ParseLine(line string)
}

// LineParserFunc adapts a function to LineParser.
type LineParserFunc func(line string)

// ParseLine calls f(line).
func (f LineParserFunc) ParseLine(line string) { f(line) }

// Pipeline connects a line reader to a parser through a bounded queue.
type Pipeline struct {
	lineChan  chan string
	closeOnce sync.Once

	linesRead    atomic.Int64
	linesDropped atomic.Int64
	linesParsed  atomic.Int64
	bytesRead    atomic.Int64
}

// NewPipeline creates a pipeline with the given queue length.
func NewPipeline(bufferSize int) *Pipeline {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Pipeline{
		lineChan: make(chan string, bufferSize),
	}
}

// RunReader is Layer 1. It reads r until EOF and never blocks on the queue.
// Lines may end in \n, \r\n or a bare \r; a final unterminated line is still
// delivered. Lines longer than 1 MiB abort splitting, but r is still drained
// to EOF so the writer never blocks.
//
// Closes the queue on return.
func (p *Pipeline) RunReader(r io.Reader) {
	defer p.closeChannel()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := scanner.Text()
		p.bytesRead.Add(int64(len(line) + 1))
		p.feed(line)
	}

	if scanner.Err() != nil {
		n, _ := io.Copy(io.Discard, r)
		p.bytesRead.Add(n)
	}
}

func (p *Pipeline) feed(line string) {
	p.linesRead.Add(1)
	select {
	case p.lineChan <- line:
	default:
		p.linesDropped.Add(1)
	}
}

func (p *Pipeline) closeChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
	})
}

// RunParser is Layer 2. It blocks until the reader has finished and every
// queued line has been parsed.
func (p *Pipeline) RunParser(parser LineParser) {
	for line := range p.lineChan {
		parser.ParseLine(line)
		p.linesParsed.Add(1)
	}
}

// Drain runs both layers and returns once r is exhausted and all queued
// lines are parsed.
func (p *Pipeline) Drain(r io.Reader, parser LineParser) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.RunParser(parser)
	}()
	p.RunReader(r)
	<-done
}

// Stats returns (read, dropped, parsed) line counts.
func (p *Pipeline) Stats() (read, dropped, parsed int64) {
	return p.linesRead.Load(), p.linesDropped.Load(), p.linesParsed.Load()
}

// BytesRead returns the bytes consumed from the reader.
func (p *Pipeline) BytesRead() int64 {
	return p.bytesRead.Load()
}

// DropRate returns dropped/read, or 0 before any line was read.
func (p *Pipeline) DropRate() float64 {
	read := p.linesRead.Load()
	if read == 0 {
		return 0
	}
	return float64(p.linesDropped.Load()) / float64(read)
}

// scanLines is bufio.ScanLines extended to treat a bare \r as a terminator,
// which ffmpeg uses for its in-place progress line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to tell \r from \r\n.
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
