package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Image is an inline diagram attached to a prompt.
type Image struct {
	Data      []byte
	MediaType string
}

// LoadImage reads an image file and detects its media type from content.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("read image %s: unsupported media type %s", path, mt.String())
	}
	return &Image{Data: data, MediaType: mt.String()}, nil
}

// DataURL encodes the image as a base64 data URL.
func (i *Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}
