package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cvstudio/internal/api/middleware"
	"cvstudio/internal/database"
	"cvstudio/internal/render"
	"cvstudio/internal/tasks"
)

// TemplateHandler 处理模板的公开查询与管理员维护。
type TemplateHandler struct {
	db          *gorm.DB
	asynqClient *asynq.Client
}

// NewTemplateHandler 构造模板处理器。
func NewTemplateHandler(db *gorm.DB, asynqClient *asynq.Client) *TemplateHandler {
	return &TemplateHandler{db: db, asynqClient: asynqClient}
}

type templateSummary struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Premium         bool   `json:"premium"`
	PreviewImageURL string `json:"preview_image_url,omitempty"`
}

// ListTemplates 返回全部模板的摘要，所有登录用户可见。
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	var templates []database.Template
	if err := h.db.WithContext(c.Request.Context()).Order("id ASC").Find(&templates).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list templates failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	resp := make([]templateSummary, 0, len(templates))
	for _, tpl := range templates {
		resp = append(resp, templateSummary{
			ID:              tpl.ID,
			Name:            tpl.Name,
			Description:     tpl.Description,
			Premium:         tpl.Premium,
			PreviewImageURL: tpl.PreviewImageURL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"templates": resp})
}

type templateDetail struct {
	templateSummary
	Sections json.RawMessage `json:"sections,omitempty"`
	Styles   json.RawMessage `json:"styles,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// GetTemplate 返回模板详情。templateData 不出网：
// 它只进渲染链路，前端通过 preview 接口看效果。
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	templateID, ok := idParam(c)
	if !ok {
		return
	}

	var tpl database.Template
	err := h.db.WithContext(c.Request.Context()).First(&tpl, templateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "template not found")
		return
	}
	if err != nil {
		middleware.LoggerFromContext(c).Error("load template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	c.JSON(http.StatusOK, templateDetail{
		templateSummary: templateSummary{
			ID:              tpl.ID,
			Name:            tpl.Name,
			Description:     tpl.Description,
			Premium:         tpl.Premium,
			PreviewImageURL: tpl.PreviewImageURL,
		},
		Sections: json.RawMessage(tpl.Sections),
		Styles:   json.RawMessage(tpl.Styles),
		Metadata: json.RawMessage(tpl.Metadata),
	})
}

type templateWriteRequest struct {
	Name         string          `json:"name" binding:"required,max=255"`
	Description  string          `json:"description" binding:"max=1024"`
	Premium      bool            `json:"premium"`
	Sections     json.RawMessage `json:"sections"`
	Styles       json.RawMessage `json:"styles"`
	TemplateData json.RawMessage `json:"template_data" binding:"required"`
	DefaultData  json.RawMessage `json:"default_data"`
	Metadata     json.RawMessage `json:"metadata"`
}

// validateTemplateProgram 在入库前编译模板，把语法错误挡在写入时。
func validateTemplateProgram(raw json.RawMessage) error {
	var payload struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	_, err := render.CompileTemplate(payload.HTML)
	return err
}

// CreateTemplate 管理员创建模板。
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req templateWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := validateTemplateProgram(req.TemplateData); err != nil {
		BadRequest(c, "invalid template data: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	tpl := database.Template{
		Name:         req.Name,
		Description:  req.Description,
		Premium:      req.Premium,
		Sections:     datatypes.JSON(req.Sections),
		Styles:       datatypes.JSON(req.Styles),
		TemplateData: datatypes.JSON(req.TemplateData),
		DefaultData:  datatypes.JSON(req.DefaultData),
		Metadata:     datatypes.JSON(req.Metadata),
	}
	if err := h.db.WithContext(ctx).Create(&tpl).Error; err != nil {
		logger.Error("create template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.enqueueThumbnail(c, tpl.ID)

	logger.Info("template created", slog.Uint64("template_id", uint64(tpl.ID)))
	c.JSON(http.StatusCreated, gin.H{"id": tpl.ID})
}

// UpdateTemplate 管理员更新模板并重新排队预览图。
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	templateID, ok := idParam(c)
	if !ok {
		return
	}

	var req templateWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := validateTemplateProgram(req.TemplateData); err != nil {
		BadRequest(c, "invalid template data: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("template_id", uint64(templateID)))

	var tpl database.Template
	err := h.db.WithContext(ctx).First(&tpl, templateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "template not found")
		return
	}
	if err != nil {
		logger.Error("load template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	update := map[string]any{
		"name":          req.Name,
		"description":   req.Description,
		"premium":       req.Premium,
		"sections":      datatypes.JSON(req.Sections),
		"styles":        datatypes.JSON(req.Styles),
		"template_data": datatypes.JSON(req.TemplateData),
		"default_data":  datatypes.JSON(req.DefaultData),
		"metadata":      datatypes.JSON(req.Metadata),
	}
	if err := h.db.WithContext(ctx).Model(&tpl).Updates(update).Error; err != nil {
		logger.Error("update template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.enqueueThumbnail(c, tpl.ID)
	c.Status(http.StatusOK)
}

// DeleteTemplate 管理员删除模板。
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	templateID, ok := idParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("template_id", uint64(templateID)))

	var inUse int64
	if err := h.db.WithContext(ctx).Model(&database.CV{}).Where("template_id = ?", templateID).Count(&inUse).Error; err != nil {
		logger.Error("count template usage failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if inUse > 0 {
		Conflict(c, "template is in use")
		return
	}

	if err := h.db.WithContext(ctx).Delete(&database.Template{}, templateID).Error; err != nil {
		logger.Error("delete template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TemplateHandler) enqueueThumbnail(c *gin.Context, templateID uint) {
	if h.asynqClient == nil {
		return
	}
	logger := middleware.LoggerFromContext(c)

	task, err := tasks.NewTemplateThumbnailTask(templateID, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Warn("build template thumbnail task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.EnqueueContext(c.Request.Context(), task); err != nil {
		logger.Warn("enqueue template thumbnail task failed", slog.Any("error", err))
	}
}
