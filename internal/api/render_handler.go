package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cvstudio/internal/api/middleware"
	"cvstudio/internal/gateway"
	"cvstudio/internal/render"
	"cvstudio/internal/renderfarm"
)

// PDFRasterizer 将自包含 HTML 文档栅格化为分页 PDF。
// 生产实现是 renderfarm.Pool。
type PDFRasterizer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// RenderHandler 暴露渲染链路的三个出口：简历预览、PDF 下载与模板预览。
// 三者的 HTML 都来自 gateway 的同一条合成路径。
type RenderHandler struct {
	gateway *gateway.Gateway
	farm    PDFRasterizer
}

// NewRenderHandler 构造渲染处理器。
func NewRenderHandler(gw *gateway.Gateway, farm PDFRasterizer) *RenderHandler {
	return &RenderHandler{gateway: gw, farm: farm}
}

// PreviewCV 返回合成后的自包含 HTML，前端以 iframe 呈现。
func (h *RenderHandler) PreviewCV(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	cvID, ok := idParam(c)
	if !ok {
		return
	}

	doc, err := h.gateway.ComposeCVDocument(c.Request.Context(), cvID, principal)
	if err != nil {
		h.respondComposeError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

// DownloadCV 同步渲染 PDF 并以附件返回。
// 失败时返回 JSON 错误体，绝不输出残缺的 PDF 字节流。
func (h *RenderHandler) DownloadCV(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	cvID, ok := idParam(c)
	if !ok {
		return
	}

	logger := middleware.LoggerFromContext(c).With(slog.Uint64("cv_id", uint64(cvID)))

	doc, err := h.gateway.ComposeCVDocument(c.Request.Context(), cvID, principal)
	if err != nil {
		h.respondComposeError(c, err)
		return
	}

	pdfBytes, err := h.farm.RenderPDF(c.Request.Context(), doc.HTML)
	if err != nil {
		var timeoutErr *renderfarm.RenderTimeoutError
		if errors.As(err, &timeoutErr) {
			logger.Warn("pdf render timed out", slog.Any("error", err))
			Internal(c, "pdf rendering timed out")
			return
		}
		logger.Error("pdf render failed", slog.Any("error", err))
		Internal(c, "pdf rendering failed")
		return
	}

	filename := sanitizeDownloadFilename(doc.Title)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

// PreviewTemplate 用模板的示例数据渲染预览 HTML。
func (h *RenderHandler) PreviewTemplate(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	templateID, ok := idParam(c)
	if !ok {
		return
	}

	doc, err := h.gateway.ComposeTemplatePreview(c.Request.Context(), templateID, principal)
	if err != nil {
		h.respondComposeError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

func (h *RenderHandler) respondComposeError(c *gin.Context, err error) {
	logger := middleware.LoggerFromContext(c)

	var notFound *gateway.NotFoundError
	if errors.As(err, &notFound) {
		NotFound(c, notFound.Error())
		return
	}
	var forbidden *gateway.ForbiddenError
	if errors.As(err, &forbidden) {
		Forbidden(c, forbidden.Error())
		return
	}
	var syntaxErr *render.TemplateSyntaxError
	if errors.As(err, &syntaxErr) {
		// 模板“程序”本身有缺陷，这是管理员的问题，不暴露细节给用户。
		logger.Error("template compilation failed", slog.Any("error", err))
		Internal(c, "template data not available")
		return
	}

	logger.Error("compose document failed", slog.Any("error", err))
	Internal(c, "internal error")
}

func idParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// sanitizeDownloadFilename 将简历标题变为安全的下载文件名。
// 只保留字母、数字、点、横线、下划线与空格；结果为空时退回 "CV"。
func sanitizeDownloadFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '.', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return "CV"
	}
	return cleaned
}
