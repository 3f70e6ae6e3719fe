package renderfarm

import (
	"errors"
	"fmt"
)

// ErrPoolClosed 表示池已关闭，不再接受渲染任务。
var ErrPoolClosed = errors.New("render pool is closed")

// RenderTimeoutError 表示任务在限定时间内未达到稳定加载/栅格化状态。
// 同一输入重试大概率同样超时，调用方不应自动重试。
type RenderTimeoutError struct {
	Kind    string
	Timeout string
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("render %s timed out after %s", e.Kind, e.Timeout)
}
