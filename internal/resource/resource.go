// Package resource loads files from the web root.
//
// All I/O failures collapse into a single *AccessError; callers that speak
// HTTP answer every one of them with 404.
package resource

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Brownie44l1/myownwebserver/internal/media"
)

// NotFoundText is the text payload that accompanies a failed load
const NotFoundText = "Not found"

// Reason is the coarse cause of a failed load
type Reason int

const (
	ReasonNotFound Reason = iota
	ReasonPermission
	ReasonIsDirectory
	ReasonUnsupportedType
	ReasonIO
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not found"
	case ReasonPermission:
		return "permission denied"
	case ReasonIsDirectory:
		return "is a directory"
	case ReasonUnsupportedType:
		return "unsupported content type"
	default:
		return "i/o error"
	}
}

// AccessError reports that a file could not be loaded
type AccessError struct {
	Name   string
	Reason Reason
	Err    error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Name, e.Reason)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Payload is the body of a successful load. Text is set for text content
// types and Bytes for images.
type Payload struct {
	ContentType string
	Text        string
	Bytes       []byte
}

// Binary reports whether the payload is framed as raw bytes
func (p Payload) Binary() bool {
	return media.IsImage(p.ContentType)
}

// Len returns the payload size in bytes
func (p Payload) Len() int {
	if p.Binary() {
		return len(p.Bytes)
	}
	return len(p.Text)
}

// Loader reads resources from a filesystem rooted at the web root
type Loader struct {
	fs billy.Filesystem
}

func NewLoader(fs billy.Filesystem) *Loader {
	return &Loader{fs: fs}
}

// Filesystem returns the filesystem the loader reads from
func (l *Loader) Filesystem() billy.Filesystem {
	return l.fs
}

// Exists reports whether name is a regular file
func (l *Loader) Exists(name string) bool {
	fi, err := l.fs.Stat(name)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// Load reads name according to its content type. On failure the returned
// payload still carries NotFoundText for text types.
func (l *Loader) Load(name, contentType string) (Payload, error) {
	switch {
	case media.IsText(contentType):
		raw, err := l.ReadBytes(name)
		if err != nil {
			return Payload{ContentType: contentType, Text: NotFoundText}, err
		}
		text, err := decodeText(raw)
		if err != nil {
			return Payload{ContentType: contentType, Text: NotFoundText}, &AccessError{Name: name, Reason: ReasonIO, Err: err}
		}
		return Payload{ContentType: contentType, Text: text}, nil

	case media.IsImage(contentType):
		raw, err := l.ReadBytes(name)
		if err != nil {
			return Payload{ContentType: contentType}, err
		}
		return Payload{ContentType: contentType, Bytes: raw}, nil

	default:
		return Payload{ContentType: contentType, Text: NotFoundText}, &AccessError{Name: name, Reason: ReasonUnsupportedType}
	}
}

// ReadBytes reads the whole file without decoding it
func (l *Loader) ReadBytes(name string) ([]byte, error) {
	fi, err := l.fs.Stat(name)
	if err != nil {
		return nil, accessError(name, err)
	}
	if fi.IsDir() {
		return nil, &AccessError{Name: name, Reason: ReasonIsDirectory}
	}

	raw, err := util.ReadFile(l.fs, name)
	if err != nil {
		return nil, accessError(name, err)
	}
	return raw, nil
}

func accessError(name string, err error) *AccessError {
	reason := ReasonIO
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, billy.ErrCrossedBoundary):
		reason = ReasonNotFound
	case errors.Is(err, fs.ErrPermission):
		reason = ReasonPermission
	}
	return &AccessError{Name: name, Reason: reason, Err: err}
}

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText decodes UTF-8, honouring a UTF-8 or UTF-16 byte order mark.
// Bytes that are neither valid UTF-8 nor marked as UTF-16 are kept as is.
func decodeText(raw []byte) (string, error) {
	if !utf8.Valid(raw) && !bytes.HasPrefix(raw, bomUTF16LE) && !bytes.HasPrefix(raw, bomUTF16BE) {
		return string(raw), nil
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
