package gateway

import "fmt"

// NotFoundError 表示简历或模板不存在，或不属于当前用户。
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ForbiddenError 表示当前用户无权使用该资源（如付费模板）。
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return e.Reason
}
