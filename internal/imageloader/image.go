// Package imageloader resolves image references into bytes with a sniffed media type.
package imageloader

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrImageUnavailable is returned when a reference cannot be turned into image bytes.
	ErrImageUnavailable = errors.New("image unavailable")
	// ErrImageTooLarge wraps ErrImageUnavailable for payloads above the configured limit.
	ErrImageTooLarge = fmt.Errorf("%w: payload too large", ErrImageUnavailable)
)

// DefaultMaxBytes bounds a single image when no limit is configured.
const DefaultMaxBytes int64 = 10 << 20

// Image is a decoded image together with the media type detected from its content.
type Image struct {
	mediaType string
	data      []byte
}

// MediaType returns the sniffed MIME type, e.g. "image/jpeg".
func (i Image) MediaType() string { return i.mediaType }

// Bytes returns the raw image payload.
func (i Image) Bytes() []byte { return i.data }

// Base64 returns the payload in standard base64 encoding.
func (i Image) Base64() string { return base64.StdEncoding.EncodeToString(i.data) }

// DataURL renders the image as data:{mediaType};base64,{payload}.
func (i Image) DataURL() string {
	return "data:" + i.mediaType + ";base64," + i.Base64()
}

// FromBytes sniffs data and returns it as an Image. Non-image content and
// payloads above maxBytes (0 means DefaultMaxBytes) yield ErrImageUnavailable.
func FromBytes(data []byte, maxBytes int64) (Image, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrImageUnavailable)
	}
	if int64(len(data)) > maxBytes {
		return Image{}, fmt.Errorf("%w (%d > %d bytes)", ErrImageTooLarge, len(data), maxBytes)
	}
	mt := mimetype.Detect(data).String()
	if !strings.HasPrefix(mt, "image/") {
		return Image{}, fmt.Errorf("%w: unsupported content %s", ErrImageUnavailable, mt)
	}
	return Image{mediaType: mt, data: data}, nil
}
