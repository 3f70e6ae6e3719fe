package cvdata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// 旧版 Content 字段名到规范名的映射。历史数据在存储中保持原样，
// 这里只做读取时的一次性迁移，渲染链路永远只见规范名。
var legacyKeyMigrations = map[string]string{
	"personalInfo":   "personalDetails",
	"workExperience": "experience",
}

// 各分区内携带日期语义的字段名。
var dateFields = map[string]struct{}{
	"startDate": {},
	"endDate":   {},
	"date":      {},
}

const displayDateLayout = "Jan 2006"

// Normalize 将原始 Content JSON 解码为 map，并迁移旧版字段名。
// 返回的 map 是新构造的，不回写存储。
func Normalize(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode cv content: %w", err)
	}

	for legacy, canonical := range legacyKeyMigrations {
		value, ok := data[legacy]
		if !ok {
			continue
		}
		if _, exists := data[canonical]; !exists {
			data[canonical] = value
		}
		delete(data, legacy)
	}

	return data, nil
}

// FormatDates 将所有日期字段就地替换为展示字符串（如 "Jan 2020"）。
// 预览与 PDF 共用这一个格式化入口，保证两条链路的输出一致。
// 无法解析的值替换为空串：分区照常渲染，只有该字段留空。
func FormatDates(data map[string]any) {
	for _, section := range SectionNames {
		items, ok := data[section].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for field := range dateFields {
				raw, ok := entry[field]
				if !ok {
					continue
				}
				entry[field] = FormatDate(raw)
			}
		}
	}
}

// FormatDate 将一个 ISO 日期值转换为展示字符串。
// 接受 RFC 3339 时间戳或 "2006-01"/"2006-01-02" 日期；其余输入返回空串。
func FormatDate(value any) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(displayDateLayout)
		}
	}
	return ""
}
