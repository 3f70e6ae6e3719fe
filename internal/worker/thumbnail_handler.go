package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvstudio/internal/database"
	"cvstudio/internal/errcode"
	"cvstudio/internal/gateway"
	"cvstudio/internal/render"
	"cvstudio/internal/renderfarm"
	"cvstudio/internal/storage"
	"cvstudio/internal/tasks"
)

const presignTTL = 7 * 24 * time.Hour

// ThumbnailTaskHandler 负责消费缩略图任务：合成文档、截图、
// 上传对象存储并回写预览地址。
type ThumbnailTaskHandler struct {
	db          *gorm.DB
	gateway     *gateway.Gateway
	farm        *renderfarm.Pool
	storage     *storage.Client
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewThumbnailTaskHandler 创建任务处理器。
func NewThumbnailTaskHandler(
	db *gorm.DB,
	gw *gateway.Gateway,
	farm *renderfarm.Pool,
	storage *storage.Client,
	redisClient *redis.Client,
	logger *slog.Logger,
) *ThumbnailTaskHandler {
	return &ThumbnailTaskHandler{
		db:          db,
		gateway:     gw,
		farm:        farm,
		storage:     storage,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessCVTask 实现简历缩略图任务（asynq.Handler）。
func (h *ThumbnailTaskHandler) ProcessCVTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.CVThumbnailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("cv_id", uint64(payload.CVID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting cv thumbnail task")

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		notify := ThumbnailNotifyMessage{
			Status:        "error",
			CVID:          payload.CVID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     classifyErrorCode(retErr),
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishNotify(ctx, payload.UserID, notify); err != nil {
			log.Error("publish thumbnail error notification failed", slog.Any("error", err))
		}
	}()

	// 以数据所有者的身份合成；worker 是受信进程，付费门槛不在此复查。
	principal := gateway.Principal{UserID: payload.UserID, IsAdmin: true}
	doc, err := h.gateway.ComposeCVDocument(ctx, payload.CVID, principal)
	if err != nil {
		var notFound *gateway.NotFoundError
		if errors.As(err, &notFound) {
			// 记录已删除，不重试。通知前端把旧的待渲染状态清掉。
			log.Warn("cv disappeared, skipping task")
			notify := ThumbnailNotifyMessage{
				Status:        "error",
				CVID:          payload.CVID,
				CorrelationID: payload.CorrelationID,
				ErrorCode:     errcode.ResourceMissing,
				ErrorMessage:  notFound.Error(),
			}
			if err := h.publishNotify(ctx, payload.UserID, notify); err != nil {
				log.Error("publish resource missing notification failed", slog.Any("error", err))
			}
			return nil
		}
		log.Error("compose cv document failed", slog.Any("error", err))
		return err
	}

	imageBytes, err := h.farm.CaptureScreenshot(ctx, doc.HTML)
	if err != nil {
		log.Error("capture thumbnail screenshot failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("thumbnails/cv/%d/preview.jpg", payload.CVID)
	presignedURL, err := h.storeThumbnail(ctx, objectName, imageBytes)
	if err != nil {
		log.Error("store thumbnail failed", slog.Any("error", err))
		return err
	}

	update := map[string]any{
		"preview_image_url":  presignedURL,
		"preview_object_key": objectName,
	}
	if err := h.db.WithContext(ctx).Model(&database.CV{}).Where("id = ?", payload.CVID).Updates(update).Error; err != nil {
		log.Error("update cv preview url failed", slog.Any("error", err))
		return err
	}

	notify := ThumbnailNotifyMessage{
		Status:        "completed",
		CVID:          payload.CVID,
		PreviewURL:    presignedURL,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}
	if err := h.publishNotify(ctx, payload.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("cv thumbnail task completed")
	return nil
}

// ProcessTemplateTask 实现模板预览图任务（asynq.Handler）。
func (h *ThumbnailTaskHandler) ProcessTemplateTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.TemplateThumbnailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("template_id", uint64(payload.TemplateID)),
	)
	log.Info("starting template thumbnail task")

	doc, err := h.gateway.ComposeTemplatePreview(ctx, payload.TemplateID, gateway.Principal{IsAdmin: true})
	if err != nil {
		var notFound *gateway.NotFoundError
		if errors.As(err, &notFound) {
			log.Warn("template disappeared, skipping task")
			return nil
		}
		log.Error("compose template preview failed", slog.Any("error", err))
		return err
	}

	imageBytes, err := h.farm.CaptureScreenshot(ctx, doc.HTML)
	if err != nil {
		log.Error("capture template screenshot failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("thumbnails/template/%d/preview.jpg", payload.TemplateID)
	presignedURL, err := h.storeThumbnail(ctx, objectName, imageBytes)
	if err != nil {
		log.Error("store template thumbnail failed", slog.Any("error", err))
		return err
	}

	update := map[string]any{
		"preview_image_url":  presignedURL,
		"preview_object_key": objectName,
	}
	if err := h.db.WithContext(ctx).Model(&database.Template{}).Where("id = ?", payload.TemplateID).Updates(update).Error; err != nil {
		log.Error("update template preview url failed", slog.Any("error", err))
		return err
	}

	log.Info("template thumbnail task completed")
	return nil
}

func (h *ThumbnailTaskHandler) storeThumbnail(ctx context.Context, objectName string, imageBytes []byte) (string, error) {
	reader := bytes.NewReader(imageBytes)
	if _, err := h.storage.UploadFile(ctx, objectName, reader, int64(len(imageBytes)), "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}

	presignedURL, err := h.storage.GeneratePresignedURL(ctx, objectName, presignTTL)
	if err != nil {
		return "", fmt.Errorf("generate thumbnail presigned url: %w", err)
	}
	return presignedURL, nil
}

func (h *ThumbnailTaskHandler) publishNotify(ctx context.Context, userID uint, notify ThumbnailNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := tasks.UserNotifyChannel(userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

// classifyErrorCode 把失败原因翻译为通知错误码，供前端区分提示文案。
func classifyErrorCode(err error) int {
	var timeout *renderfarm.RenderTimeoutError
	if errors.As(err, &timeout) {
		return errcode.RenderTimeout
	}
	var syntax *render.TemplateSyntaxError
	if errors.As(err, &syntax) {
		return errcode.TemplateInvalid
	}
	return errcode.SystemError
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
