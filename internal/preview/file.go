package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"golang.org/x/image/draw"

	dErrors "kycreview/pkg/domain-errors"
)

// File is a staged upload held in memory until it is committed or released.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

func (f File) Size() int64 { return int64(len(f.Data)) }

// thumbnailBox bounds the longest edge of generated thumbnails.
const thumbnailBox = 256

// sniffable lists the formats whose declared type must match the content.
var sniffable = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// normalize checks a file against the limits and returns it with a clean
// name and media type.
func (m *Manager) normalize(f File) (File, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(f.Name), `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return File{}, dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if len(f.Data) == 0 {
		return File{}, dErrors.New(dErrors.CodeValidation, "file "+name+" is empty")
	}
	if int64(len(f.Data)) > m.maxBytes {
		return File{}, dErrors.New(dErrors.CodeValidation, "file "+name+" exceeds the size limit")
	}

	sniffed := http.DetectContentType(f.Data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	declared := sniffed
	if strings.TrimSpace(f.MediaType) != "" {
		mt, _, err := mime.ParseMediaType(f.MediaType)
		if err != nil {
			return File{}, dErrors.New(dErrors.CodeValidation, "file "+name+" has an invalid media type")
		}
		declared = strings.ToLower(mt)
	}
	if !m.allowed[declared] {
		return File{}, dErrors.New(dErrors.CodeValidation, "format "+declared+" is not accepted")
	}
	if sniffable[declared] && sniffed != declared {
		return File{}, dErrors.New(dErrors.CodeValidation, "file "+name+" content does not match "+declared)
	}
	return File{Name: name, MediaType: declared, Data: f.Data}, nil
}

// thumbnail renders a PNG thumbnail for image files. Non-images get none.
// Dimensions are read from the header first so that images over maxPixels
// are refused before any bitmap is allocated.
func thumbnail(f File, maxPixels int64) ([]byte, error) {
	var (
		decodeConfig func(io.Reader) (image.Config, error)
		decode       func(io.Reader) (image.Image, error)
	)
	switch f.MediaType {
	case "image/png":
		decodeConfig, decode = png.DecodeConfig, png.Decode
	case "image/jpeg":
		decodeConfig, decode = jpeg.DecodeConfig, jpeg.Decode
	default:
		return nil, nil
	}

	cfg, err := decodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "file "+f.Name+" is not a readable image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file "+f.Name+" has no pixels")
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("file %s is %dx%d, above the %d pixel limit", f.Name, cfg.Width, cfg.Height, maxPixels))
	}

	src, err := decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "file "+f.Name+" is not a readable image")
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > thumbnailBox || h > thumbnailBox {
		if w >= h {
			h = max(1, h*thumbnailBox/w)
			w = thumbnailBox
		} else {
			w = max(1, w*thumbnailBox/h)
			h = thumbnailBox
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
