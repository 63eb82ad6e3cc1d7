package process

import "strings"

// FormatHint is the demuxer forced on the decoder's input. Empty means
// let the decoder probe.
type FormatHint string

const (
	FormatNone FormatHint = ""
	FormatOgg  FormatHint = "ogg"
	FormatMP3  FormatHint = "mp3"
	FormatAAC  FormatHint = "aac"
)

// FormatFromContentType maps a response Content-Type onto a demuxer hint.
// Matching is by substring, checked in order: ogg/vorbis/opus, mpeg/mp3, aac.
func FormatFromContentType(contentType string) FormatHint {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "ogg"),
		strings.Contains(ct, "vorbis"),
		strings.Contains(ct, "opus"):
		return FormatOgg
	case strings.Contains(ct, "mpeg"),
		strings.Contains(ct, "mp3"):
		return FormatMP3
	case strings.Contains(ct, "aac"):
		return FormatAAC
	default:
		return FormatNone
	}
}

// Args returns the "-f <fmt>" input arguments, or nil when no hint applies.
func (h FormatHint) Args() []string {
	if h == FormatNone {
		return nil
	}
	return []string{"-f", string(h)}
}
