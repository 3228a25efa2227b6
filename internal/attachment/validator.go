// Package attachment validates uploaded files before they are attached to a
// message.
package attachment

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

const (
	DefaultMaxBytes = 2 << 20
	maxFilenameLen  = 255
)

// DefaultAllowedTypes are the content types accepted when none are configured.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// Validator checks size and sniffed content type of uploads.
type Validator struct {
	maxBytes int64
	allowed  []string
}

// NewValidator creates a validator. Zero or empty arguments select defaults.
func NewValidator(maxBytes int64, allowed []string) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	return &Validator{maxBytes: maxBytes, allowed: allowed}
}

// MaxBytes returns the upload size limit.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

// Validate inspects data and returns an attachment descriptor carrying the
// bytes. The declared type is only used when the content cannot be
// identified.
func (v *Validator) Validate(filename, declaredType string, data []byte) (domain.AttachmentInput, error) {
	if len(data) == 0 {
		return domain.AttachmentInput{}, errs.NewInvalidArgumentError("file", "no file uploaded")
	}
	if int64(len(data)) > v.maxBytes {
		return domain.AttachmentInput{}, errs.NewTooLargeError("file",
			fmt.Sprintf("file exceeds %s limit", humanSize(v.maxBytes)))
	}

	mime := sniff(data, declaredType)
	if !mimetype.EqualsAny(mime, v.allowed...) {
		return domain.AttachmentInput{}, errs.NewUnsupportedError("file",
			"only "+strings.Join(v.allowed, ", ")+" are allowed")
	}

	return domain.AttachmentInput{
		Filename: CleanFilename(filename, mime),
		MimeType: mime,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

func sniff(data []byte, declared string) string {
	detected := mimetype.Detect(data)
	if detected.Is("application/octet-stream") && declared != "" {
		if i := strings.IndexByte(declared, ';'); i >= 0 {
			declared = declared[:i]
		}
		return strings.ToLower(strings.TrimSpace(declared))
	}
	// Drop parameters such as "; charset=utf-8".
	s := detected.String()
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return s
}

// CleanFilename strips any directory part and control characters from a
// client supplied name. An empty result is replaced by a generic name with
// the extension of the detected type.
func CleanFilename(name, mime string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		name = "attachment"
		if m := mimetype.Lookup(mime); m != nil {
			name += m.Extension()
		}
	}
	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxFilenameLen-len(ext)] + ext
	}
	return name
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
