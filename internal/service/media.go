// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/radnice/internal/blob"
	"github.com/olegiv/radnice/internal/imaging"
	"github.com/olegiv/radnice/internal/util"
)

// Upload limits
const (
	DefaultMaxUploadSize = 10 * 1024 * 1024 // 10MB
	DefaultUploadURL     = "/uploads"
	StaleTempAge         = time.Hour
)

// AllowedMimeTypes defines the MIME types that can be uploaded.
var AllowedMimeTypes = map[string]bool{
	imaging.MimeTypeJPEG: true,
	imaging.MimeTypePNG:  true,
	imaging.MimeTypeGIF:  true,
	imaging.MimeTypeWebP: true,
}

// MediaUpload is the stored result of an upload.
type MediaUpload struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Thumbnail string `json:"thumbnail"`
}

// MediaService handles media file operations.
type MediaService struct {
	processor *imaging.Processor
	urlPrefix string
	maxSize   int64
	logger    *slog.Logger
	now       func() time.Time
}

// NewMediaService creates a media service storing files under uploadDir
// and serving them below urlPrefix.
func NewMediaService(uploadDir, urlPrefix string, maxSize int64, logger *slog.Logger) *MediaService {
	if urlPrefix == "" {
		urlPrefix = DefaultUploadURL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	return &MediaService{
		processor: imaging.NewProcessor(uploadDir),
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxSize:   maxSize,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MaxSize returns the upload size cap in bytes.
func (s *MediaService) MaxSize() int64 {
	return s.maxSize
}

// Upload validates and stores an image. The declared content type must be
// allow-listed and agree with the sniffed content; nothing is written
// otherwise.
func (s *MediaService) Upload(ctx context.Context, file io.Reader, filename, declaredType string) (*MediaUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mimeType := normalizeMimeType(declaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeTypeFromExtension(filename)
	}
	if !AllowedMimeTypes[mimeType] {
		return nil, invalid("file", fmt.Sprintf("file type %s is not allowed", displayType(mimeType)))
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, invalid("file", fmt.Sprintf("exceeds maximum size of %d bytes", s.maxSize))
	}
	if len(data) == 0 {
		return nil, invalid("file", "is empty")
	}

	if sniffed := imaging.DetectMimeType(data); sniffed != mimeType {
		return nil, invalid("file", fmt.Sprintf("content is %s, declared %s", sniffed, mimeType))
	}

	res, err := s.processor.Process(data, uuid.New().String(), s.now())
	if errors.Is(err, imaging.ErrUnsupportedFormat) {
		return nil, invalid("file", "is not a readable image")
	}
	if err != nil {
		return nil, fmt.Errorf("processing upload: %w", err)
	}

	s.logger.Info("media uploaded", "path", res.Path, "size", res.Size, "mime_type", res.MimeType)

	return &MediaUpload{
		Path:      res.Path,
		URL:       s.urlFor(res.Path),
		Size:      res.Size,
		MimeType:  res.MimeType,
		Width:     res.Width,
		Height:    res.Height,
		Thumbnail: s.urlFor(res.ThumbnailPath),
	}, nil
}

// Delete removes the file at path and its thumbnail. path may be relative
// to the media root or carry the public URL prefix.
func (s *MediaService) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rel := strings.TrimSpace(path)
	if rel == "" {
		return invalid("path", "is required")
	}
	rel = strings.TrimPrefix(rel, s.urlPrefix+"/")

	full, err := util.ResolveWithinBase(s.processor.BaseDir(), rel)
	if err != nil {
		s.logger.Warn("media delete outside media root", "path", path)
		return invalid("path", "must stay within the media directory")
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("media %s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking media: %w", err)
	}
	if info.IsDir() {
		return invalid("path", "must name a file")
	}

	if err := s.processor.Remove(rel); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("media %s: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("deleting media: %w", err)
	}

	s.logger.Info("media deleted", "path", rel)
	return nil
}

// SweepTemp removes temp files older than maxAge left behind by
// interrupted writes. It returns the number of files removed.
func (s *MediaService) SweepTemp(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(s.processor.BaseDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), blob.TempPrefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove stale temp file", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweeping temp files: %w", err)
	}
	return removed, nil
}

func (s *MediaService) urlFor(rel string) string {
	return s.urlPrefix + "/" + rel
}

func normalizeMimeType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if idx := strings.Index(v, ";"); idx != -1 {
		v = strings.TrimSpace(v[:idx])
	}
	if v == "image/jpg" || v == "image/pjpeg" {
		return imaging.MimeTypeJPEG
	}
	return v
}

func mimeTypeFromExtension(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return imaging.MimeTypeJPEG
	case ".png":
		return imaging.MimeTypePNG
	case ".gif":
		return imaging.MimeTypeGIF
	case ".webp":
		return imaging.MimeTypeWebP
	default:
		return ""
	}
}

func displayType(mimeType string) string {
	if mimeType == "" {
		return "unknown"
	}
	return mimeType
}
