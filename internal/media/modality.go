// Package media classifies files by modality and fingerprints their content.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Modality is the content axis a file or embedding belongs to.
type Modality string

const (
	// ModalityAudio covers the audio extensions in audioExtensions.
	ModalityAudio Modality = "audio"
	// ModalityVideo covers the video extensions in videoExtensions.
	ModalityVideo Modality = "video"
	// ModalityUnknown is any other file; such files are skipped, not failed.
	ModalityUnknown Modality = "unknown"
)

// String implements fmt.Stringer.
func (m Modality) String() string {
	return string(m)
}

// Searchable reports whether embeddings of this modality can exist.
func (m Modality) Searchable() bool {
	return m == ModalityAudio || m == ModalityVideo
}

// ParseModality parses "audio" or "video". Other values are rejected.
func ParseModality(s string) (Modality, error) {
	switch Modality(strings.ToLower(strings.TrimSpace(s))) {
	case ModalityAudio:
		return ModalityAudio, nil
	case ModalityVideo:
		return ModalityVideo, nil
	default:
		return ModalityUnknown, fmt.Errorf("unknown modality %q (use audio or video)", s)
	}
}

// audioExtensions maps lowercase extensions to MIME types.
var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".wma":  "audio/x-ms-wma",
	".opus": "audio/opus",
}

// videoExtensions maps lowercase extensions to MIME types.
var videoExtensions = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
	".m4v":  "video/x-m4v",
}

// Classify resolves a path's modality and MIME type from its extension.
// Unrecognized extensions return ModalityUnknown and an empty MIME type.
func Classify(path string) (Modality, string) {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := audioExtensions[ext]; ok {
		return ModalityAudio, mime
	}
	if mime, ok := videoExtensions[ext]; ok {
		return ModalityVideo, mime
	}
	return ModalityUnknown, ""
}

// ModalityOf is Classify without the MIME type.
func ModalityOf(path string) Modality {
	m, _ := Classify(path)
	return m
}

// Extensions returns the recognized extensions for m.
func Extensions(m Modality) []string {
	var table map[string]string
	switch m {
	case ModalityAudio:
		table = audioExtensions
	case ModalityVideo:
		table = videoExtensions
	default:
		return nil
	}
	out := make([]string, 0, len(table))
	for ext := range table {
		out = append(out, ext)
	}
	return out
}

// Filter restricts which modalities a watched folder indexes.
type Filter string

const (
	FilterAll   Filter = "all"
	FilterAudio Filter = "audio"
	FilterVideo Filter = "video"
)

// ParseFilter parses a folder modality filter. Empty means all;
// "audio_video" is accepted as an alias of all.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "audio_video":
		return FilterAll, nil
	case "audio":
		return FilterAudio, nil
	case "video":
		return FilterVideo, nil
	default:
		return "", fmt.Errorf("unknown modality filter %q (use all, audio or video)", s)
	}
}

// Allows reports whether files of modality m pass the filter.
func (f Filter) Allows(m Modality) bool {
	if !m.Searchable() {
		return false
	}
	switch f {
	case FilterAudio:
		return m == ModalityAudio
	case FilterVideo:
		return m == ModalityVideo
	default:
		return true
	}
}
