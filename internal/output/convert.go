package output

import (
	"bytes"
	"fmt"
	"image/png"

	"golang.org/x/image/tiff"
)

// Converter turns a result image into a browser-displayable file.
type Converter interface {
	Convert(fsys Filesystem, src, dst string) error
}

// PNGConverter decodes TIFF images and re-encodes them as PNG.
type PNGConverter struct{}

// Convert writes src as a PNG at dst.
func (PNGConverter) Convert(fsys Filesystem, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	img, err := tiff.Decode(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode %s: %w", dst, err)
	}
	return fsys.WriteFile(dst, buf.Bytes(), 0o644)
}
