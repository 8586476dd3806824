// Package audio stages synthesized chunks on local disk and merges them into one file.
package audio

import "strings"

// Format is an audio container the speech service can produce.
type Format string

// Supported formats.
const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
	FormatOGG Format = "ogg"
)

var contentTypes = map[Format]string{
	FormatMP3: "audio/mpeg",
	FormatWAV: "audio/wav",
	FormatOGG: "audio/ogg",
}

// ParseFormat returns the format named by value, defaulting to MP3 for unknown names.
func ParseFormat(value string) Format {
	format := Format(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := contentTypes[format]; ok {
		return format
	}

	return FormatMP3
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	return contentTypes[f]
}

// Extension returns the file extension of the format, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}
