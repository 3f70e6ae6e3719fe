package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Context 是一次渲染的请求级输入。
// Data 来自规范化后的 CV 记录；Fragments 只能由模板作者提供，
// 是 {{{name}}} 原样插值的唯一来源——CV 数据没有任何通往
// 非转义输出的路径。
type Context struct {
	Data      map[string]any
	Fragments map[string]string
}

// Template 是编译后的模板。编译失败返回 *TemplateSyntaxError；
// 编译成功后渲染不会失败（缺失路径解析为空串）。
type Template struct {
	nodes []node
}

type node interface {
	render(b *strings.Builder, ctx Context, scopes []any)
}

type textNode string

type varNode struct {
	path []string
}

type rawNode struct {
	name string
}

type blockNode struct {
	kind     string // "each" or "if"
	path     []string
	children []node
}

// CompileTemplate 解析受信的模板 HTML 字符串。
// 支持的语法：
//
//	{{path.to.field}}    转义插值
//	{{#each path}}...{{/each}}  数组迭代，内部可用 {{this}} / {{this.field}}
//	{{#if path}}...{{/if}}      条件块
//	{{{name}}}           受信片段原样插值（仅查 Fragments）
func CompileTemplate(src string) (*Template, error) {
	p := &parser{src: src}
	nodes, err := p.parse("")
	if err != nil {
		return nil, err
	}
	return &Template{nodes: nodes}, nil
}

// Render 用给定上下文渲染模板，输出最终 HTML。
func (t *Template) Render(ctx Context) string {
	var b strings.Builder
	scopes := []any{ctx.Data}
	for _, n := range t.nodes {
		n.render(&b, ctx, scopes)
	}
	return b.String()
}

// Render 一次性编译并渲染。模板结构不合法时返回 *TemplateSyntaxError。
func Render(src string, ctx Context) (string, error) {
	tmpl, err := CompileTemplate(src)
	if err != nil {
		return "", err
	}
	return tmpl.Render(ctx), nil
}

type parser struct {
	src string
	pos int
}

// parse 读取节点直到遇到 blockKind 对应的闭合标签（顶层为 ""，读到 EOF）。
func (p *parser) parse(blockKind string) ([]node, error) {
	var nodes []node

	for p.pos < len(p.src) {
		open := strings.Index(p.src[p.pos:], "{{")
		if open < 0 {
			nodes = append(nodes, textNode(p.src[p.pos:]))
			p.pos = len(p.src)
			break
		}
		if open > 0 {
			nodes = append(nodes, textNode(p.src[p.pos:p.pos+open]))
			p.pos += open
		}

		// 原样插值 {{{name}}}
		if strings.HasPrefix(p.src[p.pos:], "{{{") {
			end := strings.Index(p.src[p.pos+3:], "}}}")
			if end < 0 {
				return nil, &TemplateSyntaxError{Construct: "unterminated raw expression"}
			}
			name := strings.TrimSpace(p.src[p.pos+3 : p.pos+3+end])
			p.pos += 3 + end + 3
			nodes = append(nodes, rawNode{name: name})
			continue
		}

		end := strings.Index(p.src[p.pos+2:], "}}")
		if end < 0 {
			return nil, &TemplateSyntaxError{Construct: "unterminated expression"}
		}
		tag := strings.TrimSpace(p.src[p.pos+2 : p.pos+2+end])
		p.pos += 2 + end + 2

		switch {
		case strings.HasPrefix(tag, "#each"):
			path, err := blockPath(tag, "#each")
			if err != nil {
				return nil, err
			}
			children, err := p.parse("each")
			if err != nil {
				if syntaxErr, ok := err.(*TemplateSyntaxError); ok && strings.HasPrefix(syntaxErr.Construct, "unclosed block") {
					return nil, &TemplateSyntaxError{Construct: fmt.Sprintf("unclosed {{#each %s}}", strings.Join(path, "."))}
				}
				return nil, err
			}
			nodes = append(nodes, blockNode{kind: "each", path: path, children: children})

		case strings.HasPrefix(tag, "#if"):
			path, err := blockPath(tag, "#if")
			if err != nil {
				return nil, err
			}
			children, err := p.parse("if")
			if err != nil {
				if syntaxErr, ok := err.(*TemplateSyntaxError); ok && strings.HasPrefix(syntaxErr.Construct, "unclosed block") {
					return nil, &TemplateSyntaxError{Construct: fmt.Sprintf("unclosed {{#if %s}}", strings.Join(path, "."))}
				}
				return nil, err
			}
			nodes = append(nodes, blockNode{kind: "if", path: path, children: children})

		case strings.HasPrefix(tag, "/"):
			closing := strings.TrimSpace(tag[1:])
			if blockKind == "" {
				return nil, &TemplateSyntaxError{Construct: fmt.Sprintf("unexpected {{/%s}}", closing)}
			}
			if closing != blockKind {
				return nil, &TemplateSyntaxError{Construct: fmt.Sprintf("mismatched {{/%s}}, expected {{/%s}}", closing, blockKind)}
			}
			return nodes, nil

		case tag == "":
			return nil, &TemplateSyntaxError{Construct: "empty expression"}

		default:
			nodes = append(nodes, varNode{path: strings.Split(tag, ".")})
		}
	}

	if blockKind != "" {
		return nil, &TemplateSyntaxError{Construct: "unclosed block " + blockKind}
	}
	return nodes, nil
}

func blockPath(tag, prefix string) ([]string, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(tag, prefix))
	if rest == "" || strings.ContainsAny(rest, " \t") {
		return nil, &TemplateSyntaxError{Construct: fmt.Sprintf("malformed {{%s}} expression", prefix)}
	}
	return strings.Split(rest, "."), nil
}

func (t textNode) render(b *strings.Builder, _ Context, _ []any) {
	b.WriteString(string(t))
}

func (v varNode) render(b *strings.Builder, _ Context, scopes []any) {
	value := lookup(scopes, v.path)
	b.WriteString(html.EscapeString(stringify(value)))
}

func (r rawNode) render(b *strings.Builder, ctx Context, _ []any) {
	// 只查受信片段表；该查找失败返回空串而不是回退到数据。
	b.WriteString(ctx.Fragments[r.name])
}

func (n blockNode) render(b *strings.Builder, ctx Context, scopes []any) {
	value := lookup(scopes, n.path)

	switch n.kind {
	case "each":
		items, ok := value.([]any)
		if !ok {
			return
		}
		for _, item := range items {
			inner := make([]any, len(scopes)+1)
			copy(inner, scopes)
			inner[len(scopes)] = item
			for _, child := range n.children {
				child.render(b, ctx, inner)
			}
		}
	case "if":
		if !truthy(value) {
			return
		}
		for _, child := range n.children {
			child.render(b, ctx, scopes)
		}
	}
}

// lookup 按路径解析值：`this` 指向当前迭代项，其余路径从最内层
// 作用域向外查找，均未命中返回 nil。
func lookup(scopes []any, path []string) any {
	if len(path) == 0 {
		return nil
	}
	if path[0] == "this" {
		current := scopes[len(scopes)-1]
		if len(path) == 1 {
			return current
		}
		value, ok := descend(current, path[1:])
		if !ok {
			return nil
		}
		return value
	}

	for i := len(scopes) - 1; i >= 0; i-- {
		if value, ok := descend(scopes[i], path); ok {
			return value
		}
	}
	return nil
}

func descend(root any, path []string) (any, bool) {
	current := root
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		// 结构值（map/slice）不做标量插值。
		return ""
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}
