// Package desktop turns the entries of a desktop directory into icons.
package desktop

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// Kind classifies an entry for script lookup and default artwork.
type Kind string

const (
	KindFile       Kind = "file"
	KindFolder     Kind = "folder"
	KindSymlink    Kind = "symlink"
	KindExecutable Kind = "executable"
	KindImage      Kind = "image"
	KindDocument   Kind = "document"
	KindArchive    Kind = "archive"
	KindVideo      Kind = "video"
	KindAudio      Kind = "audio"
)

var extensionKinds = map[string]Kind{
	"sh": KindExecutable, "bash": KindExecutable, "zsh": KindExecutable, "fish": KindExecutable,
	"py": KindExecutable, "rb": KindExecutable, "pl": KindExecutable,

	"png": KindImage, "jpg": KindImage, "jpeg": KindImage, "gif": KindImage,
	"bmp": KindImage, "svg": KindImage, "webp": KindImage, "ico": KindImage,

	"pdf": KindDocument, "doc": KindDocument, "docx": KindDocument, "odt": KindDocument,
	"txt": KindDocument, "md": KindDocument, "rst": KindDocument,

	"zip": KindArchive, "tar": KindArchive, "gz": KindArchive, "bz2": KindArchive,
	"xz": KindArchive, "7z": KindArchive, "rar": KindArchive, "zst": KindArchive,

	"mp4": KindVideo, "mkv": KindVideo, "avi": KindVideo, "mov": KindVideo,
	"webm": KindVideo, "flv": KindVideo,

	"mp3": KindAudio, "flac": KindAudio, "wav": KindAudio, "ogg": KindAudio,
	"m4a": KindAudio, "opus": KindAudio,
}

// DetectKind classifies an entry from its name and Lstat mode. Extensions
// win over permissions; an extensionless file with any execute bit is
// executable.
func DetectKind(name string, mode fs.FileMode) Kind {
	switch {
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindFolder
	}

	if ext := strings.TrimPrefix(filepath.Ext(name), "."); ext != "" {
		if kind, ok := extensionKinds[strings.ToLower(ext)]; ok {
			return kind
		}
		return KindFile
	}
	if mode.Perm()&0o111 != 0 {
		return KindExecutable
	}
	return KindFile
}

// Icon is one desktop entry.
type Icon struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Kind     Kind      `json:"kind"`
	MimeType string    `json:"mime_type"`
	IsDir    bool      `json:"is_dir"`
	Size     *uint64   `json:"size,omitempty"`
	ModTime  time.Time `json:"mod_time"`
}

// IconType is the coarse type sent to scripts: file, directory,
// application or symlink.
func (i Icon) IconType() string {
	switch i.Kind {
	case KindFolder:
		return "directory"
	case KindExecutable:
		return "application"
	case KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}

// Metadata builds the render metadata for an icon of the given size.
func (i Icon) Metadata(size uint32) protocol.IconMetadata {
	return protocol.IconMetadata{
		Path:        i.Path,
		Name:        i.Name,
		Width:       size,
		Height:      size,
		MimeType:    i.MimeType,
		IsDirectory: i.IsDir,
		Size:        i.Size,
		IconType:    i.IconType(),
	}
}
