// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/olegiv/radnice/internal/service"
)

// multipartOverhead allows for multipart framing on top of the file cap.
const multipartOverhead = 1 << 20

// Upload results counted by the metrics.
const (
	uploadSuccess  = "success"
	uploadRejected = "rejected"
	uploadError    = "error"
)

// UploadMedia handles POST /api/v1/media/upload (multipart field "file").
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	maxSize := h.media.MaxSize()
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		h.metrics.ObserveUpload(uploadRejected)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteValidationError(w, map[string]string{
				"file": fmt.Sprintf("exceeds maximum size of %d bytes", maxSize),
			})
			return
		}
		WriteBadRequest(w, "Invalid multipart form", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.ObserveUpload(uploadRejected)
		WriteValidationError(w, map[string]string{"file": "is required"})
		return
	}
	defer func() { _ = file.Close() }()

	upload, err := h.media.Upload(r.Context(), file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			h.metrics.ObserveUpload(uploadRejected)
		} else {
			h.metrics.ObserveUpload(uploadError)
		}
		h.writeServiceError(w, r, "media", err)
		return
	}

	h.metrics.ObserveUpload(uploadSuccess)
	WriteCreated(w, upload)
}

// DeleteMedia handles DELETE /api/v1/media/delete?path=.
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := h.media.Delete(r.Context(), path); err != nil {
		h.writeServiceError(w, r, "media", err)
		return
	}
	WriteSuccess(w, map[string]string{"path": path}, nil)
}
