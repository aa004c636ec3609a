// Package transcode converts an arbitrary source image (original upload
// or pipeline-derived PNG) into the PNG byte stream the block/project
// "image" routes serve, regardless of the source's actual on-disk
// format.
package transcode

import (
	"bytes"
	"fmt"
	"image/png"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ToPNG reads the file at path, decodes it with the standard library's
// registered formats (plus WebP via the blank x/image/webp import) and
// re-encodes it as PNG.
func ToPNG(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
