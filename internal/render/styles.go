package render

import (
	"sort"
	"strings"
	"unicode"
)

// Styles 是模板的样式配置，来源于模板记录的 styles JSON。
type Styles struct {
	PrimaryColor    string            `json:"primaryColor,omitempty"`
	SecondaryColor  string            `json:"secondaryColor,omitempty"`
	BackgroundColor string            `json:"backgroundColor,omitempty"`
	FontFamily      string            `json:"fontFamily,omitempty"`
	FontSize        string            `json:"fontSize,omitempty"`
	Spacing         string            `json:"spacing,omitempty"`
	BorderRadius    string            `json:"borderRadius,omitempty"`
	BoxShadow       string            `json:"boxShadow,omitempty"`
	CustomStyles    map[string]string `json:"customStyles,omitempty"`
}

// CompileStyles 将样式配置编译为一段 CSS 自定义属性声明。
// 纯函数：给定输入输出字节级稳定，预览与 PDF 共用同一次编译逻辑。
// 缺失或为空的字段不产生声明。
func CompileStyles(s Styles) string {
	var b strings.Builder
	b.WriteString(":root {\n")

	writeDecl(&b, "primary-color", s.PrimaryColor)
	writeDecl(&b, "secondary-color", s.SecondaryColor)
	writeDecl(&b, "background-color", s.BackgroundColor)
	writeDecl(&b, "font-family", s.FontFamily)
	writeDecl(&b, "font-size", s.FontSize)
	writeDecl(&b, "spacing", s.Spacing)
	writeDecl(&b, "border-radius", s.BorderRadius)
	writeDecl(&b, "box-shadow", s.BoxShadow)

	// 自定义键按字典序输出，保证确定性。
	keys := make([]string, 0, len(s.CustomStyles))
	for k := range s.CustomStyles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeDecl(&b, kebabCase(k), s.CustomStyles[k])
	}

	b.WriteString("}\n")
	return b.String()
}

func writeDecl(b *strings.Builder, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	b.WriteString("  --")
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString(";\n")
}

// kebabCase 将 camelCase 键机械转换为 kebab-case：
// 每个大写字母前插入连字符并转为小写。
func kebabCase(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
