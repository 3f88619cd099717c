package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

func TestValidateImage_SniffsRealType(t *testing.T) {
	jpegBytes := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 16)...)

	contentType, err := ValidateImage(jpegBytes)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "image/jpeg" {
		t.Errorf("contentType = %q", contentType)
	}

	// A GIF is a real image but not an accepted type.
	gifBytes := append([]byte("GIF89a"), make([]byte, 16)...)
	if _, err := ValidateImage(gifBytes); !errors.Is(err, utils.ErrUnsupportedMedia) {
		t.Errorf("gif: err = %v", err)
	}
}

func TestValidateImage_CapIsExclusive(t *testing.T) {
	atCap := make([]byte, MaxUploadSize)
	copy(atCap, pngBytes)
	if _, err := ValidateImage(atCap); err != nil {
		t.Errorf("payload exactly at the cap must pass: %v", err)
	}

	if _, err := ValidateImage(make([]byte, MaxUploadSize+1)); !errors.Is(err, utils.ErrPayloadTooLarge) {
		t.Error("payload one byte over the cap must be rejected")
	}
}

func TestObjectExtension(t *testing.T) {
	cases := []struct {
		fileName    string
		contentType string
		want        string
	}{
		{"receipt.JPEG", "image/jpeg", ".jpeg"},
		{"receipt.png", "image/png", ".png"},
		{"receipt", "image/webp", ".webp"},
		{"receipt.heic", "image/jpeg", ".jpg"}, // untrusted extension, sniffed type wins
		{"receipt", "application/pdf", ".bin"},
	}
	for _, c := range cases {
		if got := objectExtension(c.fileName, c.contentType); got != c.want {
			t.Errorf("objectExtension(%q, %q) = %q, want %q", c.fileName, c.contentType, got, c.want)
		}
	}
}
