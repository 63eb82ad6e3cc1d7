package parser

import (
	"math"
	"strconv"
	"strings"
)

// Statistics keys emitted by ffmpeg's astats filter with metadata=1 and
// printed by ametadata=mode=print, e.g.
//
//	[Parsed_ametadata_1 @ 0x55d1c] lavfi.astats.1.Peak_level=-4.502
const (
	astatsMarker = "lavfi.astats."

	KeyPeakChannel1 = "lavfi.astats.1.Peak_level"
	KeyPeakChannel2 = "lavfi.astats.2.Peak_level"
	KeyPeakOverall  = "lavfi.astats.Overall.Peak_level"
)

// PeakSink receives parsed peak levels in dBFS.
type PeakSink interface {
	SetPeakLeft(dbfs float64)
	SetPeakRight(dbfs float64)
	RightPeakSet() bool
}

// PeakParser maps astats peak lines onto left/right channel gauges.
// Lines without a statistics key are handed to the fallback parser, if any.
type PeakParser struct {
	sink     PeakSink
	fallback LineParser

	peakLines  int64
	otherLines int64
}

// NewPeakParser creates a parser writing to sink. fallback may be nil.
func NewPeakParser(sink PeakSink, fallback LineParser) *PeakParser {
	return &PeakParser{sink: sink, fallback: fallback}
}

// ParseLine implements LineParser. Only called from one goroutine.
func (p *PeakParser) ParseLine(line string) {
	key, value, ok := ParseStat(line)
	if !ok {
		p.otherLines++
		if p.fallback != nil {
			p.fallback.ParseLine(line)
		}
		return
	}

	switch key {
	case KeyPeakChannel1:
		p.sink.SetPeakLeft(value)
	case KeyPeakChannel2:
		p.sink.SetPeakRight(value)
	case KeyPeakOverall:
		p.sink.SetPeakLeft(value)
		// Mono sources only report Overall; mirror once so the right
		// channel is not stuck at unknown.
		if !p.sink.RightPeakSet() {
			p.sink.SetPeakRight(value)
		}
	default:
		return
	}
	p.peakLines++
}

// Stats returns (peak lines applied, non-statistics lines).
func (p *PeakParser) Stats() (peaks, other int64) {
	return p.peakLines, p.otherLines
}

// ParseStat extracts "lavfi.astats.<...>=<float>" from a line. ok is false
// when the marker is absent or the value is not a finite number; ffmpeg
// prints "-inf" for digital silence and such lines are skipped.
func ParseStat(line string) (key string, value float64, ok bool) {
	i := strings.Index(line, astatsMarker)
	if i < 0 {
		return "", 0, false
	}
	rest := line[i:]

	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return "", 0, false
	}
	key = strings.TrimSpace(rest[:eq])

	v, err := strconv.ParseFloat(strings.TrimSpace(rest[eq+1:]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return "", 0, false
	}
	return key, v, true
}
