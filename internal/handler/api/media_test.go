// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/olegiv/radnice/internal/service"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, token, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return e.serve(req)
}

// countFiles returns the number of regular files below dir.
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir: %v", err)
	}
	return n
}

func TestMedia_UploadAndDelete(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.editor)

	w := env.upload(t, token, "file", "mapa-obce.png", pngBytes(t, 64, 48))
	assertStatusCode(t, w, http.StatusCreated)
	up := decodeEnvelope[service.MediaUpload](t, w).Data

	if up.MimeType != "image/png" || up.Width != 64 || up.Height != 48 {
		t.Errorf("upload = %+v", up)
	}
	if up.URL != "/uploads/"+up.Path {
		t.Errorf("url = %q; want /uploads/%s", up.URL, up.Path)
	}
	if _, err := os.Stat(filepath.Join(env.uploadDir, filepath.FromSlash(up.Path))); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/media/delete?path="+url.QueryEscape(up.URL), "", token)
	assertStatusCode(t, w, http.StatusOK)
	if _, err := os.Stat(filepath.Join(env.uploadDir, filepath.FromSlash(up.Path))); !os.IsNotExist(err) {
		t.Errorf("file still present after delete: %v", err)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/media/delete?path="+url.QueryEscape(up.Path), "", token)
	assertStatusCode(t, w, http.StatusNotFound)
}

func TestMedia_UploadRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.editor)

	tests := []struct {
		name     string
		field    string
		filename string
		data     []byte
	}{
		{"pdf", "file", "vyhlaska.pdf", []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")},
		{"pdf renamed to png", "file", "vyhlaska.png", []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")},
		{"missing file field", "soubor", "mapa.png", pngBytes(t, 4, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.upload(t, token, tt.field, tt.filename, tt.data)
			assertStatusCode(t, w, http.StatusBadRequest)
			resp := assertErrorResponse(t, w, "validation_error")
			if _, ok := resp.Error.Details["file"]; !ok {
				t.Errorf("details = %v; want file", resp.Error.Details)
			}
		})
	}

	if n := countFiles(t, env.uploadDir); n != 0 {
		t.Errorf("%d files written for rejected uploads", n)
	}
}

func TestMedia_UploadRequiresEditor(t *testing.T) {
	env := newTestEnv(t)

	w := env.upload(t, env.token(t, env.viewer), "file", "mapa.png", pngBytes(t, 4, 4))
	assertStatusCode(t, w, http.StatusForbidden)
	if n := countFiles(t, env.uploadDir); n != 0 {
		t.Errorf("%d files written for a forbidden upload", n)
	}
}

func TestMedia_DeleteOutsideRoot(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, env.editor)

	tests := []struct {
		name string
		path string
	}{
		{"missing", ""},
		{"parent traversal", "../../etc/passwd"},
		{"prefixed traversal", "/uploads/../secret.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodDelete, "/api/v1/media/delete?path="+url.QueryEscape(tt.path), "", token)
			assertStatusCode(t, w, http.StatusBadRequest)
			assertErrorResponse(t, w, "validation_error")
		})
	}
}
