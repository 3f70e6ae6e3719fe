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
	"cvstudio/internal/cvdata"
	"cvstudio/internal/database"
	"cvstudio/internal/storage"
	"cvstudio/internal/tasks"
)

// CVHandler 处理简历的增删改查。渲染出口在 RenderHandler。
type CVHandler struct {
	db          *gorm.DB
	asynqClient *asynq.Client
	storage     *storage.Client
	maxCVs      int
}

// NewCVHandler 构造简历处理器。
func NewCVHandler(db *gorm.DB, asynqClient *asynq.Client, storageClient *storage.Client, maxCVs int) *CVHandler {
	return &CVHandler{
		db:          db,
		asynqClient: asynqClient,
		storage:     storageClient,
		maxCVs:      maxCVs,
	}
}

type createCVRequest struct {
	Title      string          `json:"title" binding:"required,max=255"`
	TemplateID uint            `json:"template_id" binding:"required"`
	Content    json.RawMessage `json:"content"`
}

type cvResponse struct {
	ID              uint            `json:"id"`
	Title           string          `json:"title"`
	TemplateID      uint            `json:"template_id"`
	Content         json.RawMessage `json:"content,omitempty"`
	Public          bool            `json:"public"`
	PreviewImageURL string          `json:"preview_image_url,omitempty"`
}

func toCVResponse(cv *database.CV, withContent bool) cvResponse {
	resp := cvResponse{
		ID:              cv.ID,
		Title:           cv.Title,
		TemplateID:      cv.TemplateID,
		Public:          cv.Public,
		PreviewImageURL: cv.PreviewImageURL,
	}
	if withContent {
		resp.Content = json.RawMessage(cv.Content)
	}
	return resp
}

// CreateCV 创建简历。未提供 content 时使用模板自带的示例数据起步。
func (h *CVHandler) CreateCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req createCVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	var count int64
	if err := h.db.WithContext(ctx).Model(&database.CV{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		logger.Error("count cvs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if h.maxCVs > 0 && count >= int64(h.maxCVs) {
		Forbidden(c, "cv limit reached")
		return
	}

	var tpl database.Template
	if err := h.db.WithContext(ctx).First(&tpl, req.TemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
			return
		}
		logger.Error("load template failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	content := []byte(req.Content)
	if len(content) > 0 {
		if err := validateCVContent(content); err != nil {
			BadRequest(c, "invalid cv content: "+err.Error())
			return
		}
	}
	if len(content) == 0 {
		content = tpl.DefaultData
	}
	if len(content) == 0 {
		content = []byte("{}")
	}

	cv := database.CV{
		Title:      req.Title,
		Content:    datatypes.JSON(content),
		UserID:     userID,
		TemplateID: tpl.ID,
	}
	if err := h.db.WithContext(ctx).Create(&cv).Error; err != nil {
		logger.Error("create cv failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.enqueueThumbnail(c, cv.ID, userID)

	logger.Info("cv created", slog.Uint64("cv_id", uint64(cv.ID)))
	c.JSON(http.StatusCreated, toCVResponse(&cv, true))
}

// ListCVs 返回当前用户的简历列表（不含正文）。
func (h *CVHandler) ListCVs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var cvs []database.CV
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&cvs).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list cvs failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	resp := make([]cvResponse, 0, len(cvs))
	for i := range cvs {
		resp = append(resp, toCVResponse(&cvs[i], false))
	}
	c.JSON(http.StatusOK, gin.H{"cvs": resp})
}

// GetCV 返回单份简历及正文。
func (h *CVHandler) GetCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	cvID, ok := idParam(c)
	if !ok {
		return
	}

	cv, ok := h.loadOwnedCV(c, cvID, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toCVResponse(cv, true))
}

type updateCVRequest struct {
	Title      *string         `json:"title" binding:"omitempty,max=255"`
	TemplateID *uint           `json:"template_id"`
	Content    json.RawMessage `json:"content"`
	Public     *bool           `json:"public"`
}

// UpdateCV 更新简历并重新排队缩略图。
func (h *CVHandler) UpdateCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	cvID, ok := idParam(c)
	if !ok {
		return
	}

	var req updateCVRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	cv, ok := h.loadOwnedCV(c, cvID, userID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("cv_id", uint64(cvID)))

	update := map[string]any{}
	if req.Title != nil {
		update["title"] = *req.Title
	}
	if req.TemplateID != nil {
		var tpl database.Template
		if err := h.db.WithContext(ctx).First(&tpl, *req.TemplateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				NotFound(c, "template not found")
				return
			}
			logger.Error("load template failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		update["template_id"] = tpl.ID
	}
	if len(req.Content) > 0 {
		if err := validateCVContent(req.Content); err != nil {
			BadRequest(c, "invalid cv content: "+err.Error())
			return
		}
		update["content"] = datatypes.JSON(req.Content)
	}
	if req.Public != nil {
		update["public"] = *req.Public
	}
	if len(update) == 0 {
		BadRequest(c, "nothing to update")
		return
	}

	if err := h.db.WithContext(ctx).Model(cv).Updates(update).Error; err != nil {
		logger.Error("update cv failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.enqueueThumbnail(c, cv.ID, userID)

	var fresh database.CV
	if err := h.db.WithContext(ctx).First(&fresh, cv.ID).Error; err != nil {
		logger.Error("reload cv failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, toCVResponse(&fresh, true))
}

// DeleteCV 删除简历与其缩略图对象。
func (h *CVHandler) DeleteCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	cvID, ok := idParam(c)
	if !ok {
		return
	}

	cv, ok := h.loadOwnedCV(c, cvID, userID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("cv_id", uint64(cvID)))

	if err := h.db.WithContext(ctx).Delete(cv).Error; err != nil {
		logger.Error("delete cv failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if h.storage != nil && cv.PreviewObjectKey != "" {
		if err := h.storage.DeleteObject(ctx, cv.PreviewObjectKey); err != nil {
			logger.Warn("delete cv thumbnail failed", slog.Any("error", err))
		}
	}

	c.Status(http.StatusNoContent)
}

func (h *CVHandler) loadOwnedCV(c *gin.Context, cvID, userID uint) (*database.CV, bool) {
	var cv database.CV
	err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", cvID, userID).
		First(&cv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "cv not found")
		return nil, false
	}
	if err != nil {
		middleware.LoggerFromContext(c).Error("load cv failed", slog.Any("error", err))
		Internal(c, "internal error")
		return nil, false
	}
	return &cv, true
}

// enqueueThumbnail 排队缩略图任务；失败只记日志，不影响主流程。
func (h *CVHandler) enqueueThumbnail(c *gin.Context, cvID, userID uint) {
	if h.asynqClient == nil {
		return
	}
	logger := middleware.LoggerFromContext(c)

	task, err := tasks.NewCVThumbnailTask(cvID, userID, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Warn("build thumbnail task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.EnqueueContext(c.Request.Context(), task); err != nil {
		logger.Warn("enqueue thumbnail task failed", slog.Any("error", err))
	}
}

// validateCVContent 确认正文能解码为规范分区结构。
// 未知键不报错（旧键由渲染侧迁移），但分区类型必须正确。
func validateCVContent(raw json.RawMessage) error {
	var content cvdata.Content
	return json.Unmarshal(raw, &content)
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}
