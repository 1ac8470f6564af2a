// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package imaging decodes uploaded images, normalizes their orientation and
// stores them with a thumbnail under a dated directory layout.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/olegiv/radnice/internal/blob"
	"github.com/olegiv/radnice/internal/util"
)

// Supported image MIME types.
const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
	MimeTypeGIF  = "image/gif"
	MimeTypeWebP = "image/webp"
)

// Encoding and thumbnail defaults.
const (
	DefaultQuality  = 90
	ThumbnailWidth  = 300
	ThumbnailHeight = 300
	ThumbnailSuffix = "_thumb"
)

// ErrUnsupportedFormat is returned for data that is not a supported image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Result describes a stored image. Paths are slash-separated and relative
// to the processor's base directory.
type Result struct {
	Path          string
	ThumbnailPath string
	MimeType      string
	Size          int64
	Width         int
	Height        int
}

// Processor handles image processing operations.
type Processor struct {
	baseDir string
	quality int
}

// NewProcessor creates a new image processor writing below baseDir.
func NewProcessor(baseDir string) *Processor {
	return &Processor{
		baseDir: baseDir,
		quality: DefaultQuality,
	}
}

// BaseDir returns the directory images are written to.
func (p *Processor) BaseDir() string {
	return p.baseDir
}

// Process decodes data, applies the EXIF orientation, and writes the
// normalized image to YYYY/MM/<id>.<ext> with a thumbnail next to it.
// Re-encoding drops all metadata. WebP input is stored as JPEG because
// there is no pure Go WebP encoder.
func (p *Processor) Process(data []byte, id string, at time.Time) (*Result, error) {
	format := DetectFormat(data)
	if format == "" {
		return nil, ErrUnsupportedFormat
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if format == "jpeg" {
		img = applyOrientation(img, readExifOrientation(bytes.NewReader(data)))
	}

	outFormat := format
	if outFormat == "webp" {
		outFormat = "jpeg"
	}
	encoded, err := encodeImage(img, outFormat, p.quality)
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	at = at.UTC()
	dir := path.Join(fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", int(at.Month())))
	ext := extensionFor(outFormat)
	rel := path.Join(dir, id+ext)
	if err := p.save(rel, encoded); err != nil {
		return nil, err
	}

	thumb := imaging.Fit(img, ThumbnailWidth, ThumbnailHeight, imaging.Lanczos)
	thumbData, err := encodeImage(thumb, outFormat, p.quality)
	if err != nil {
		_ = p.Remove(rel)
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	thumbRel := path.Join(dir, id+ThumbnailSuffix+ext)
	if err := p.save(thumbRel, thumbData); err != nil {
		_ = p.Remove(rel)
		return nil, err
	}

	bounds := img.Bounds()
	return &Result{
		Path:          rel,
		ThumbnailPath: thumbRel,
		MimeType:      FormatToMimeType(outFormat),
		Size:          int64(len(encoded)),
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
	}, nil
}

// Remove deletes the image at rel and its thumbnail, if any. It returns
// an error wrapping os.ErrNotExist when the image itself is missing.
func (p *Processor) Remove(rel string) error {
	full, err := util.ResolveWithinBase(p.baseDir, rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return err
	}

	thumb, err := util.ResolveWithinBase(p.baseDir, ThumbnailPathFor(rel))
	if err == nil {
		if err := os.Remove(thumb); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing thumbnail: %w", err)
		}
	}
	return nil
}

// ThumbnailPathFor returns the thumbnail path that belongs to an image path.
func ThumbnailPathFor(rel string) string {
	ext := path.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	if strings.HasSuffix(base, ThumbnailSuffix) {
		return rel
	}
	return base + ThumbnailSuffix + ext
}

// IsImage checks if a MIME type represents an image that can be processed.
func IsImage(mimeType string) bool {
	switch mimeType {
	case MimeTypeJPEG, MimeTypePNG, MimeTypeGIF, MimeTypeWebP:
		return true
	default:
		return false
	}
}

// DetectMimeType sniffs the MIME type of data without parameters.
func DetectMimeType(data []byte) string {
	contentType := http.DetectContentType(data)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}

// DetectFormat detects the image format from raw bytes.
func DetectFormat(data []byte) string {
	contentType := http.DetectContentType(data)
	// TIFF is rejected outright (CVE-2023-36308 in disintegration/imaging).
	if strings.Contains(contentType, "tiff") {
		return ""
	}
	switch {
	case strings.Contains(contentType, "jpeg"):
		return "jpeg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	default:
		return ""
	}
}

// FormatToMimeType converts format string to MIME type.
func FormatToMimeType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return MimeTypeJPEG
	case "png":
		return MimeTypePNG
	case "gif":
		return MimeTypeGIF
	case "webp":
		return MimeTypeWebP
	default:
		return "application/octet-stream"
	}
}

func extensionFor(format string) string {
	switch format {
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// readExifOrientation reads the EXIF orientation tag from image data.
// Returns 1 (normal) if orientation cannot be determined.
func readExifOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}

	return orientation
}

// applyOrientation applies EXIF orientation transformation to an image.
// Orientation values:
// 1: Normal
// 2: Flip horizontal
// 3: Rotate 180°
// 4: Flip vertical
// 5: Rotate 90° CW + flip horizontal
// 6: Rotate 90° CW
// 7: Rotate 90° CCW + flip horizontal
// 8: Rotate 90° CCW
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.FlipH(imaging.Rotate270(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.FlipH(imaging.Rotate90(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// save writes data to rel below the base directory via temp file and rename.
func (p *Processor) save(rel string, data []byte) error {
	full, err := util.ResolveWithinBase(p.baseDir, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := blob.WriteFileAtomic(full, data, 0o644); err != nil {
		return fmt.Errorf("saving %s: %w", rel, err)
	}
	return nil
}
