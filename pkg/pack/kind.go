package pack

import "strings"

// ContentKind is the closed set of content categories a drop can
// declare. The storage backend only ever sees the kind, never the
// real mime type of the payload.
type ContentKind int

const (
	KindBinary ContentKind = iota
	KindText
	KindImage
	KindVideo
	KindAudio
	KindDocument
	KindArchive
)

func (k ContentKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindDocument:
		return "document"
	case KindArchive:
		return "archive"
	}
	return "unknown"
}

// ParseKind maps the string form back to a ContentKind. Unknown values
// fall back to KindBinary.
func ParseKind(s string) ContentKind {
	switch s {
	case "text":
		return KindText
	case "image":
		return KindImage
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	case "document":
		return KindDocument
	case "archive":
		return KindArchive
	}
	return KindBinary
}

var documentMimes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/rtf": true,
}

var archiveMimes = map[string]bool{
	"application/zip":              true,
	"application/gzip":             true,
	"application/x-tar":            true,
	"application/x-7z-compressed":  true,
	"application/x-rar-compressed": true,
	"application/x-xz":             true,
}

// KindOf classifies a mime type into a ContentKind. An empty or
// unrecognized mime type classifies as KindBinary.
func KindOf(mimeType string) ContentKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch {
	case strings.HasPrefix(mt, "text/"):
		return KindText
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case mt == "application/json" || mt == "application/xml":
		return KindText
	case documentMimes[mt]:
		return KindDocument
	case archiveMimes[mt]:
		return KindArchive
	}
	return KindBinary
}
