package render

import "fmt"

// TemplateSyntaxError 表示模板标记结构不合法（如未闭合的块）。
// 该错误不可按请求恢复，调用方应对外返回“模板数据不可用”。
type TemplateSyntaxError struct {
	Construct string
}

func (e *TemplateSyntaxError) Error() string {
	return fmt.Sprintf("template syntax error: %s", e.Construct)
}
