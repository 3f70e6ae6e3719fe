package api

import (
	"bytes"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newPhotoUpload(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create form part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestUploadAsset_RejectsUnsupportedImageType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewAssetHandler(nil, slog.Default(), "")

	body, contentType := newPhotoUpload(t, "notes.txt", "text/plain", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/v1/assets/upload", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set("userID", uint(1))

	h.UploadAsset(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "unsupported image type") {
		t.Errorf("body = %s, want unsupported image type", w.Body.String())
	}
}

func TestIsValidUserAssetObjectKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"user-assets/7/photo.png", true},
		{"user-assets/7/photo.webp", true},
		{"user-assets/8/photo.png", false},
		{"user-assets/7/../8/photo.png", false},
		{"user-assets/7//photo.png", false},
		{"user-assets/7/archive.zip", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isValidUserAssetObjectKey(7, tc.key); got != tc.want {
			t.Errorf("isValidUserAssetObjectKey(7, %q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}
