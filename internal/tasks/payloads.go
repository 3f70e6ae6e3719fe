package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCVThumbnail       = "thumbnail:cv"
	TypeTemplateThumbnail = "thumbnail:template"
)

// UserNotifyChannel 返回缩略图完成通知使用的 Redis Pub/Sub 频道。
// worker 发布、WebSocket 端订阅，频道名必须出自同一处。
func UserNotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// CVThumbnailPayload 描述为简历截取缩略图所需的最小信息。
type CVThumbnailPayload struct {
	CVID          uint   `json:"cv_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// TemplateThumbnailPayload 描述为模板截取预览图所需的最小信息。
type TemplateThumbnailPayload struct {
	TemplateID    uint   `json:"template_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCVThumbnailTask 构造一个新的简历缩略图任务。
func NewCVThumbnailTask(cvID, userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CVThumbnailPayload{
		CVID:          cvID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCVThumbnail, payload), nil
}

// NewTemplateThumbnailTask 构造一个新的模板预览图任务。
func NewTemplateThumbnailTask(templateID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(TemplateThumbnailPayload{
		TemplateID:    templateID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTemplateThumbnail, payload), nil
}
