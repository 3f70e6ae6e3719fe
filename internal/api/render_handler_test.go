package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cvstudio/internal/database"
	"cvstudio/internal/gateway"
	"cvstudio/internal/renderfarm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.User{}, &database.CV{}, &database.Template{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func stubPrincipal(principal gateway.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", principal.UserID)
		c.Set("principal", principal)
		c.Next()
	}
}

// fakeRasterizer 记录收到的 HTML 并返回预设结果。
type fakeRasterizer struct {
	html string
	data []byte
	err  error
}

func (f *fakeRasterizer) RenderPDF(_ context.Context, html string) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func newRenderTestRouter(db *gorm.DB, principal gateway.Principal, farm PDFRasterizer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewRenderHandler(gateway.New(db), farm)
	router.GET("/v1/cv/:id/preview", stubPrincipal(principal), handler.PreviewCV)
	router.GET("/v1/cv/:id/download", stubPrincipal(principal), handler.DownloadCV)
	router.GET("/v1/templates/:id/preview", stubPrincipal(principal), handler.PreviewTemplate)
	return router
}

func seedRenderFixture(t *testing.T, db *gorm.DB, templateData string, premium bool) *database.CV {
	t.Helper()
	tpl := &database.Template{
		Name:         "Fixture",
		Premium:      premium,
		TemplateData: []byte(templateData),
		DefaultData:  []byte(`{"personalDetails": {"fullName": "Example Person"}}`),
	}
	if err := db.Create(tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	cv := &database.CV{
		Title:      "Test CV",
		Content:    []byte(`{"personalDetails": {"fullName": "Grace Hopper"}}`),
		UserID:     1,
		TemplateID: tpl.ID,
	}
	if err := db.Create(cv).Error; err != nil {
		t.Fatalf("seed cv: %v", err)
	}
	return cv
}

const fixtureTemplate = `{"html": "<h1>{{personalDetails.fullName}}</h1>", "css": ""}`

func TestPreviewCV_ReturnsComposedHTML(t *testing.T) {
	db := newTestDB(t)
	cv := seedRenderFixture(t, db, fixtureTemplate, false)
	router := newRenderTestRouter(db, gateway.Principal{UserID: 1}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/preview", cv.ID), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<h1>Grace Hopper</h1>") {
		t.Error("preview does not contain rendered cv data")
	}
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("preview is not a standalone document")
	}
}

func TestPreviewCV_NotFoundForForeignCV(t *testing.T) {
	db := newTestDB(t)
	cv := seedRenderFixture(t, db, fixtureTemplate, false)
	router := newRenderTestRouter(db, gateway.Principal{UserID: 42}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/preview", cv.ID), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPreviewCV_PremiumGate(t *testing.T) {
	db := newTestDB(t)
	cv := seedRenderFixture(t, db, fixtureTemplate, true)
	router := newRenderTestRouter(db, gateway.Principal{UserID: 1}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/preview", cv.ID), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestPreviewCV_BrokenTemplateHidesDetails(t *testing.T) {
	db := newTestDB(t)
	broken := `{"html": "<ul>{{#each experience}}<li>{{position}}</li>", "css": ""}`
	cv := seedRenderFixture(t, db, broken, false)
	router := newRenderTestRouter(db, gateway.Principal{UserID: 1}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/preview", cv.ID), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "template data not available") {
		t.Errorf("body = %s, want generic template error", body)
	}
	if strings.Contains(body, "each") {
		t.Error("template internals leaked to the client")
	}
}

func TestPreviewTemplate_UsesDefaultData(t *testing.T) {
	db := newTestDB(t)
	cv := seedRenderFixture(t, db, fixtureTemplate, false)
	router := newRenderTestRouter(db, gateway.Principal{UserID: 1}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/templates/%d/preview", cv.TemplateID), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Example Person") {
		t.Error("template preview does not render defaultData")
	}
}

func TestDownloadCV_UsesPreviewDocument(t *testing.T) {
	db := newTestDB(t)
	cv := seedRenderFixture(t, db, fixtureTemplate, false)
	farm := &fakeRasterizer{data: []byte("%PDF-1.7 fake")}
	router := newRenderTestRouter(db, gateway.Principal{UserID: 1}, farm)

	preview := httptest.NewRecorder()
	router.ServeHTTP(preview, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/preview", cv.ID), nil))
	if preview.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body = %s", preview.Code, preview.Body.String())
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/download", cv.ID), nil))

	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d, body = %s", w.Code, w.Body.String())
	}
	// PDF 与预览必须来自同一份合成文档。
	if farm.html != preview.Body.String() {
		t.Error("rasterized html differs from the preview document")
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/pdf") {
		t.Errorf("content type = %q, want application/pdf", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), farm.data) {
		t.Error("response body is not the rasterizer output")
	}
	want := `attachment; filename="Test CV.pdf"`
	if got := w.Header().Get("Content-Disposition"); got != want {
		t.Errorf("content disposition = %q, want %q", got, want)
	}
}

func TestDownloadCV_FarmFailureReturnsJSONBody(t *testing.T) {
	db := newTestDB(t)
	cv := seedRenderFixture(t, db, fixtureTemplate, false)
	farm := &fakeRasterizer{err: errors.New("browser crashed")}
	router := newRenderTestRouter(db, gateway.Principal{UserID: 1}, farm)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/download", cv.ID), nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type = %q, want application/json", ct)
	}
	if strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Error("failure response must not carry pdf bytes")
	}
	if !strings.Contains(w.Body.String(), "pdf rendering failed") {
		t.Errorf("body = %s, want generic failure message", w.Body.String())
	}
}

func TestDownloadCV_TimeoutReturnsJSONBody(t *testing.T) {
	db := newTestDB(t)
	cv := seedRenderFixture(t, db, fixtureTemplate, false)
	farm := &fakeRasterizer{err: &renderfarm.RenderTimeoutError{Kind: "pdf", Timeout: "45s"}}
	router := newRenderTestRouter(db, gateway.Principal{UserID: 1}, farm)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/cv/%d/download", cv.ID), nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pdf rendering timed out") {
		t.Errorf("body = %s, want timeout message", w.Body.String())
	}
}

func TestSanitizeDownloadFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"My Resume", "My Resume"},
		{"resume_v2.final-1", "resume_v2.final-1"},
		{"简历/2024\\draft", "2024draft"},
		{"../../etc/passwd", "....etcpasswd"},
		{"???", "CV"},
		{"", "CV"},
		{"  ", "CV"},
	}
	for _, tc := range cases {
		if got := sanitizeDownloadFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeDownloadFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
