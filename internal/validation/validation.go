// Package validation checks user-supplied file names and upload payloads
// before they reach the extractor, guarding against path injection and
// resource exhaustion.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// Security limits to prevent DoS attacks (CWE-400).
const (
	// MaxUploadSize is the maximum accepted document size (50 MB).
	MaxUploadSize = 50 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrEmptyUpload      = errors.New("upload is empty")
	ErrUploadTooLarge   = errors.New("upload too large")
	ErrTypeMismatch     = errors.New("file type mismatch")
)

// ValidateFilename checks if a filename is safe and does not contain malicious characters.
// It rejects filenames with path separators, control characters, and dangerous patterns.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	// Leading hyphens are confused with command flags.
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// ValidatePath checks a local path for length limits and invalid characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

// SanitizeFilename sanitizes a filename by removing or replacing invalid characters.
// Browsers send full client paths in some cases, so only the last element is kept.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	if i := strings.LastIndexAny(filename, "/\\"); i >= 0 {
		filename = filename[i+1:]
	}

	var cleaned strings.Builder
	for _, r := range filename {
		if !unicode.IsControl(r) {
			cleaned.WriteRune(r)
		}
	}
	filename = strings.TrimLeft(cleaned.String(), "-")

	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// FileType represents a validated file type.
type FileType string

const (
	FileTypeDOCX    FileType = "docx"
	FileTypeZip     FileType = "zip"
	FileTypeXZ      FileType = "xz"
	FileTypeJSON    FileType = "json"
	FileTypeText    FileType = "text"
	FileTypePDF     FileType = "pdf"
	FileTypeUnknown FileType = "unknown"
)

// magicBytes defines magic byte signatures for file type detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}},
	{FileTypeZip, []byte{0x50, 0x4b, 0x05, 0x06}}, // empty archive
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{FileTypePDF, []byte("%PDF-")},
}

// DetectFromExtension determines the claimed file type from a name.
func DetectFromExtension(filename string) FileType {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".json.xz") {
		return FileTypeXZ
	}
	switch filepath.Ext(lower) {
	case ".docx":
		return FileTypeDOCX
	case ".zip":
		return FileTypeZip
	case ".xz":
		return FileTypeXZ
	case ".json":
		return FileTypeJSON
	case ".txt", ".md":
		return FileTypeText
	case ".pdf":
		return FileTypePDF
	default:
		return FileTypeUnknown
	}
}

// DetectFromMagic detects the file type from leading bytes.
func DetectFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

// ValidateUpload checks an uploaded payload against its name and the
// size limit, returning the detected type. Container checks for .docx
// are left to the extractor, which reports them with the file name.
func ValidateUpload(filename string, data []byte, maxSize int64) (FileType, error) {
	if err := ValidateFilename(filename); err != nil {
		return FileTypeUnknown, err
	}
	if len(data) == 0 {
		return FileTypeUnknown, ErrEmptyUpload
	}
	if maxSize <= 0 {
		maxSize = MaxUploadSize
	}
	if int64(len(data)) > maxSize {
		return FileTypeUnknown, fmt.Errorf("%w: %d bytes exceeds %d", ErrUploadTooLarge, len(data), maxSize)
	}

	claimed := DetectFromExtension(filename)
	detected := DetectFromMagic(data)

	switch claimed {
	case FileTypeDOCX:
		return FileTypeDOCX, nil
	case FileTypeJSON, FileTypeText:
		if detected != FileTypeUnknown || !IsLikelyText(data) {
			return FileTypeUnknown, fmt.Errorf("%w: %s does not look like text", ErrTypeMismatch, filename)
		}
		return claimed, nil
	case FileTypeUnknown:
		return detected, nil
	}

	if detected != claimed {
		return FileTypeUnknown, fmt.Errorf("%w: extension suggests %s but content is %s", ErrTypeMismatch, claimed, detected)
	}
	return claimed, nil
}

// IsLikelyText checks if the first 512 bytes look like UTF-8 or ASCII text.
func IsLikelyText(buf []byte) bool {
	if len(buf) > 512 {
		buf = buf[:512]
	}
	if len(buf) == 0 {
		return false
	}
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	printable := 0
	control := 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 {
			control++
		}
		// UTF-8 lead and continuation bytes are neutral
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
