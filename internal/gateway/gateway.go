package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"cvstudio/internal/cvdata"
	"cvstudio/internal/database"
	"cvstudio/internal/render"
)

// Principal 是鉴权中间件从 JWT 解析出的请求主体。
type Principal struct {
	UserID    uint
	IsPremium bool
	IsAdmin   bool
}

// Document 是一次合成的最终产物：预览、PDF、缩略图共用同一份 HTML。
type Document struct {
	HTML  string
	Title string
}

// ResolvedCV 是渲染前的全部输入：规范化数据、样式配置与受信模板程序。
type ResolvedCV struct {
	CV       *database.CV
	Template *database.Template

	Data      map[string]any
	Styles    render.Styles
	HTML      string
	CSS       string
	Fragments map[string]string
}

// templatePayload 对应 Template.TemplateData 的 JSON 结构。
type templatePayload struct {
	HTML      string            `json:"html"`
	CSS       string            `json:"css"`
	Fragments map[string]string `json:"fragments"`
}

// Gateway 汇聚简历与模板数据并产出合成文档。只读，绝不回写存储。
type Gateway struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Gateway {
	return &Gateway{db: db}
}

// ResolveCV 加载用户自己的简历与其关联模板，并完成渲染前的全部数据准备：
// 旧字段名迁移、日期预格式化、关闭分区清空、分区配置注入。
func (g *Gateway) ResolveCV(ctx context.Context, cvID uint, principal Principal) (*ResolvedCV, error) {
	var cv database.CV
	err := g.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", cvID, principal.UserID).
		First(&cv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "cv", ID: cvID}
	}
	if err != nil {
		return nil, fmt.Errorf("load cv %d: %w", cvID, err)
	}

	tpl, err := g.loadTemplate(ctx, cv.TemplateID, principal)
	if err != nil {
		return nil, err
	}

	data, err := g.prepareData(cv.Content, tpl)
	if err != nil {
		return nil, err
	}

	return g.assemble(&cv, tpl, data)
}

// ResolveTemplate 加载模板及其示例数据（defaultData），用于模板预览。
func (g *Gateway) ResolveTemplate(ctx context.Context, templateID uint, principal Principal) (*ResolvedCV, error) {
	tpl, err := g.loadTemplate(ctx, templateID, principal)
	if err != nil {
		return nil, err
	}

	data, err := g.prepareData(tpl.DefaultData, tpl)
	if err != nil {
		return nil, err
	}

	return g.assemble(nil, tpl, data)
}

// ComposeCVDocument 是预览、PDF 与缩略图链路的唯一 HTML 来源。
// 三条链路经由同一条合成路径，保证输出逐字节一致。
func (g *Gateway) ComposeCVDocument(ctx context.Context, cvID uint, principal Principal) (*Document, error) {
	resolved, err := g.ResolveCV(ctx, cvID, principal)
	if err != nil {
		return nil, err
	}
	return compose(resolved, resolved.CV.Title)
}

// ComposeTemplatePreview 用模板自带的示例数据合成预览文档。
func (g *Gateway) ComposeTemplatePreview(ctx context.Context, templateID uint, principal Principal) (*Document, error) {
	resolved, err := g.ResolveTemplate(ctx, templateID, principal)
	if err != nil {
		return nil, err
	}
	return compose(resolved, resolved.Template.Name)
}

func compose(resolved *ResolvedCV, title string) (*Document, error) {
	styleCSS := render.CompileStyles(resolved.Styles)

	body, err := render.Render(resolved.HTML, render.Context{
		Data:      resolved.Data,
		Fragments: resolved.Fragments,
	})
	if err != nil {
		return nil, err
	}

	return &Document{
		HTML:  render.ComposeDocument(styleCSS, resolved.CSS, body),
		Title: title,
	}, nil
}

func (g *Gateway) loadTemplate(ctx context.Context, templateID uint, principal Principal) (*database.Template, error) {
	var tpl database.Template
	err := g.db.WithContext(ctx).First(&tpl, templateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "template", ID: templateID}
	}
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", templateID, err)
	}

	if tpl.Premium && !principal.IsPremium && !principal.IsAdmin {
		return nil, &ForbiddenError{Reason: "premium template requires a premium account"}
	}

	return &tpl, nil
}

// prepareData 将 Content JSON 变为可直接绑定的数据：迁移旧字段名、
// 格式化日期、清空被模板关闭的分区，并把分区配置挂到 "sections" 下
// 供模板自行决定布局。
func (g *Gateway) prepareData(raw []byte, tpl *database.Template) (map[string]any, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	data, err := cvdata.Normalize(raw)
	if err != nil {
		return nil, err
	}
	cvdata.FormatDates(data)

	sections := map[string]any{}
	if len(tpl.Sections) > 0 {
		if err := json.Unmarshal(tpl.Sections, &sections); err != nil {
			return nil, fmt.Errorf("decode template %d sections: %w", tpl.ID, err)
		}
	}

	for _, name := range cvdata.SectionNames {
		cfg, ok := sections[name].(map[string]any)
		if !ok {
			continue
		}
		if enabled, ok := cfg["enabled"].(bool); ok && !enabled {
			data[name] = []any{}
		}
	}
	data["sections"] = sections

	return data, nil
}

func (g *Gateway) assemble(cv *database.CV, tpl *database.Template, data map[string]any) (*ResolvedCV, error) {
	var payload templatePayload
	if len(tpl.TemplateData) > 0 {
		if err := json.Unmarshal(tpl.TemplateData, &payload); err != nil {
			return nil, fmt.Errorf("decode template %d data: %w", tpl.ID, err)
		}
	}

	var styles render.Styles
	if len(tpl.Styles) > 0 {
		if err := json.Unmarshal(tpl.Styles, &styles); err != nil {
			return nil, fmt.Errorf("decode template %d styles: %w", tpl.ID, err)
		}
	}

	return &ResolvedCV{
		CV:        cv,
		Template:  tpl,
		Data:      data,
		Styles:    styles,
		HTML:      payload.HTML,
		CSS:       payload.CSS,
		Fragments: payload.Fragments,
	}, nil
}
