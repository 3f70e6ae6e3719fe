package render

import "strings"

// DocumentRootID 是文档主体容器的元素 ID，截图捕获以它为目标。
const DocumentRootID = "document-root"

// baseStylesheet 提供全文档字体回退与打印取色规则。
// 级联顺序固定：自定义属性 → 基础规则 → 模板 CSS，
// 模板作者可以覆盖基础规则，但不会破坏变量契约。
const baseStylesheet = `html, body {
  margin: 0;
  padding: 0;
  background: #ffffff;
}
body {
  font-family: var(--font-family, 'Helvetica Neue', Arial, sans-serif);
  font-size: var(--font-size, 11pt);
  color: #1f2933;
  -webkit-print-color-adjust: exact;
  print-color-adjust: exact;
}
@page {
  size: A4;
  margin: 0;
}`

// ComposeDocument 将编译后的样式、模板自带 CSS 与渲染后的正文
// 组装为一份自包含的 HTML 文档。预览与 PDF 两条链路都经由此函数，
// 同一输入必须产出字节级一致的文档。
func ComposeDocument(styleCSS, templateCSS, body string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n<style>\n")
	b.WriteString(styleCSS)
	b.WriteString("\n")
	b.WriteString(baseStylesheet)
	b.WriteString("\n")
	b.WriteString(templateCSS)
	b.WriteString("\n</style>\n</head>\n<body>\n<div id=\"")
	b.WriteString(DocumentRootID)
	b.WriteString("\">\n")
	b.WriteString(body)
	b.WriteString("\n</div>\n</body>\n</html>\n")
	return b.String()
}
