package dataurl

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestParseDataURL(t *testing.T) {
	raw := []byte("\x89PNG fake")
	in := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)

	img, err := Parse(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", img.MIMEType)
	}
	if !bytes.Equal(img.Data, raw) {
		t.Errorf("payload mismatch: %q", img.Data)
	}
}

func TestParseBarePayload(t *testing.T) {
	raw := []byte("pattern-bytes")
	img, err := Parse(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.MIMEType != DefaultMIMEType {
		t.Errorf("expected default mime, got %s", img.MIMEType)
	}
	if !bytes.Equal(img.Data, raw) {
		t.Errorf("payload mismatch: %q", img.Data)
	}
}

func TestParseUnpadded(t *testing.T) {
	raw := []byte("ab")
	img, err := Parse("data:image/png;base64," + base64.RawStdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(img.Data, raw) {
		t.Errorf("payload mismatch: %q", img.Data)
	}
}

func TestParseMalformed(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"http://example.com/a.png,abc",
		"data:image/png,plain-text",
		"data:image/png;base64,!!!not-base64!!!",
		"data:image/png;base64,",
	}
	for _, in := range inputs {
		if _, err := Parse(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	img := New("", []byte{1, 2, 3})
	s := img.String()
	if s != "data:image/png;base64,AQID" {
		t.Fatalf("unexpected data URL: %s", s)
	}
	back, err := Parse(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(back.Data, img.Data) {
		t.Error("round trip changed the payload")
	}
}

func TestNilImageString(t *testing.T) {
	var img *Image
	if img.String() != "" {
		t.Error("nil image should render as empty string")
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"image/jpeg": ".jpg",
		"image/webp": ".webp",
		"image/png":  ".png",
		"":           ".png",
	}
	for mime, want := range tests {
		if got := (&Image{MIMEType: mime}).Extension(); got != want {
			t.Errorf("Extension(%q) = %q, want %q", mime, got, want)
		}
	}
}
