// Package dataurl converts between browser data URLs and raw image bytes.
//
// Images cross the application boundary as data:<mime>;base64,<payload>. Only
// the decoded payload is sent to the model; model output is wrapped back into
// the same form before it is handed to callers.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DefaultMIMEType is assumed when the input carries no media type.
const DefaultMIMEType = "image/png"

// ErrMalformed is returned when the input is not a decodable data URL or a bare
// base64 payload.
var ErrMalformed = errors.New("malformed data URL")

// Image is an encoded raster image and its media type.
type Image struct {
	MIMEType string
	Data     []byte
}

// New returns an Image, defaulting an empty MIME type.
func New(mimeType string, data []byte) *Image {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return &Image{MIMEType: mimeType, Data: data}
}

// Parse decodes a data URL. A string with no comma is treated as a bare base64
// payload of DefaultMIMEType.
func Parse(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	header, payload, found := strings.Cut(s, ",")
	if !found {
		return decode(DefaultMIMEType, s)
	}

	if !strings.HasPrefix(header, "data:") {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrMalformed)
	}
	meta := strings.TrimPrefix(header, "data:")
	mimeType, params, _ := strings.Cut(meta, ";")
	if !strings.Contains(";"+params+";", ";base64;") {
		return nil, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformed)
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return decode(mimeType, payload)
}

func decode(mimeType, payload string) (*Image, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return &Image{MIMEType: mimeType, Data: data}, nil
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// String renders the image as a data URL.
func (img *Image) String() string {
	if img == nil {
		return ""
	}
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return "data:" + mimeType + ";base64," + img.Base64()
}

// Extension returns a file extension (with dot) for the image's media type.
func (img *Image) Extension() string {
	switch img.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
