// Package codec negotiates the capture encoding and maps encoded types to
// file extensions.
package codec

import "strings"

// PreferredMimeTypes is the capture preference order, most preferred first.
var PreferredMimeTypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
}

// Capability reports which encoded types the runtime encoder can produce.
type Capability interface {
	IsTypeSupported(mimeType string) bool
}

// CapabilityFunc adapts a plain function to Capability.
type CapabilityFunc func(mimeType string) bool

// IsTypeSupported calls f(mimeType).
func (f CapabilityFunc) IsTypeSupported(mimeType string) bool { return f(mimeType) }

// ChooseMimeType returns the first candidate the capability accepts, or ""
// when none match. An empty result means the encoder picks its own default.
func ChooseMimeType(c Capability, candidates []string) string {
	if c == nil {
		return ""
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if c.IsTypeSupported(candidate) {
			return candidate
		}
	}
	return ""
}

// BaseType strips parameters from a MIME type ("audio/webm;codecs=opus" ->
// "audio/webm") and lowercases it.
func BaseType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// Codecs returns the value of the codecs parameter, or "".
func Codecs(mimeType string) string {
	_, params, ok := strings.Cut(mimeType, ";")
	if !ok {
		return ""
	}
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(k, "codecs") {
			return strings.ToLower(strings.Trim(v, `"`))
		}
	}
	return ""
}

// DefaultCaptureExtension is used when the captured type is unrecognised.
const DefaultCaptureExtension = "webm"

// CaptureExtension derives the extension of a locally captured artifact.
func CaptureExtension(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "webm"):
		return "webm"
	case strings.Contains(m, "ogg"):
		return "ogg"
	case strings.Contains(m, "mp4"):
		return "mp4"
	default:
		return DefaultCaptureExtension
	}
}

// DefaultDownloadExtension is used when a downloaded content type is
// unrecognised.
const DefaultDownloadExtension = "mp3"

// DownloadExtension derives the extension of a downloaded artifact from the
// response content type.
func DownloadExtension(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "wav"):
		return "wav"
	case strings.Contains(ct, "mp4"), strings.Contains(ct, "m4a"):
		return "m4a"
	case strings.Contains(ct, "webm"):
		return "webm"
	case strings.Contains(ct, "ogg"):
		return "ogg"
	default:
		return DefaultDownloadExtension
	}
}

var contentTypes = map[string]string{
	"webm": "audio/webm",
	"ogg":  "audio/ogg",
	"mp4":  "audio/mp4",
	"m4a":  "audio/mp4",
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
}

// ContentTypeFor returns the canonical content type for an extension, or
// application/octet-stream.
func ContentTypeFor(ext string) string {
	if ct, ok := contentTypes[strings.TrimPrefix(strings.ToLower(ext), ".")]; ok {
		return ct
	}
	return "application/octet-stream"
}
