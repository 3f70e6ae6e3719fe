package render

import (
	"errors"
	"strings"
	"testing"
)

func TestRender_Interpolation(t *testing.T) {
	out, err := Render(`<h1>{{personalDetails.fullName}}</h1>`, Context{
		Data: map[string]any{
			"personalDetails": map[string]any{"fullName": "Grace Hopper"},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "<h1>Grace Hopper</h1>" {
		t.Errorf("out = %q", out)
	}
}

func TestRender_EscapesUserData(t *testing.T) {
	out, err := Render(`<p>{{description}}</p>`, Context{
		Data: map[string]any{
			"description": `<script>alert(1)</script>`,
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("script tag leaked unescaped: %q", out)
	}
	if !strings.Contains(out, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Errorf("expected escaped markup, got %q", out)
	}
}

func TestRender_MissingPathIsEmpty(t *testing.T) {
	out, err := Render(`[{{experience.endDate}}]`, Context{Data: map[string]any{}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "[]" {
		t.Errorf("missing path should render empty, got %q", out)
	}
	if strings.Contains(out, "undefined") || strings.Contains(out, "null") {
		t.Errorf("must never render literal undefined/null: %q", out)
	}
}

func TestRender_EachIteratesWithItemScope(t *testing.T) {
	out, err := Render(
		`{{#each experience}}<li>{{this.company}} – {{position}}</li>{{/each}}`,
		Context{Data: map[string]any{
			"experience": []any{
				map[string]any{"company": "Acme", "position": "Engineer"},
				map[string]any{"company": "Globex", "position": "Lead"},
			},
		}},
	)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "<li>Acme – Engineer</li><li>Globex – Lead</li>"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestRender_EachOverScalars(t *testing.T) {
	out, err := Render(`{{#each tags}}[{{this}}]{{/each}}`, Context{
		Data: map[string]any{"tags": []any{"go", "sql"}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "[go][sql]" {
		t.Errorf("out = %q", out)
	}
}

func TestRender_EmptyOrAbsentArray(t *testing.T) {
	for _, data := range []map[string]any{
		{},
		{"certifications": []any{}},
		{"certifications": "not an array"},
	} {
		out, err := Render(`{{#each certifications}}<li>{{name}}</li>{{/each}}`, Context{Data: data})
		if err != nil {
			t.Fatalf("render with %v: %v", data, err)
		}
		if out != "" {
			t.Errorf("empty/absent array should render nothing, got %q", out)
		}
	}
}

func TestRender_IfBlock(t *testing.T) {
	tmpl := `{{#if personalDetails.summary}}<section>{{personalDetails.summary}}</section>{{/if}}`

	out, err := Render(tmpl, Context{Data: map[string]any{
		"personalDetails": map[string]any{"summary": "Hi"},
	}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "<section>Hi</section>" {
		t.Errorf("out = %q", out)
	}

	out, err = Render(tmpl, Context{Data: map[string]any{
		"personalDetails": map[string]any{"summary": ""},
	}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "" {
		t.Errorf("falsy condition should render nothing, got %q", out)
	}
}

func TestRender_RawResolvesFragmentsOnly(t *testing.T) {
	ctx := Context{
		Data: map[string]any{
			"divider": `<script>alert(1)</script>`,
		},
		Fragments: map[string]string{
			"divider": `<hr class="fancy">`,
		},
	}

	out, err := Render(`{{{divider}}}`, ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != `<hr class="fancy">` {
		t.Errorf("raw should come from fragments, got %q", out)
	}

	// 数据里同名的值绝不能流入原样输出。
	out, err = Render(`{{{divider}}}`, Context{Data: ctx.Data})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "" {
		t.Errorf("raw without fragment must be empty, got %q", out)
	}
}

func TestCompileTemplate_UnclosedEach(t *testing.T) {
	_, err := CompileTemplate(`{{#each experience}}<li>{{company}}</li>`)
	var syntaxErr *TemplateSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected TemplateSyntaxError, got %v", err)
	}
	if !strings.Contains(syntaxErr.Construct, "each experience") {
		t.Errorf("error should name the construct, got %q", syntaxErr.Construct)
	}
}

func TestCompileTemplate_MismatchedClose(t *testing.T) {
	_, err := CompileTemplate(`{{#if a}}{{/each}}`)
	var syntaxErr *TemplateSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected TemplateSyntaxError, got %v", err)
	}
}

func TestCompileTemplate_StrayClose(t *testing.T) {
	_, err := CompileTemplate(`text {{/each}}`)
	var syntaxErr *TemplateSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected TemplateSyntaxError, got %v", err)
	}
}

func TestCompileTemplate_UnterminatedExpression(t *testing.T) {
	_, err := CompileTemplate(`hello {{name`)
	var syntaxErr *TemplateSyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected TemplateSyntaxError, got %v", err)
	}
}

func TestRender_NestedEach(t *testing.T) {
	out, err := Render(
		`{{#each projects}}<div>{{name}}{{#each this.tags}}<i>{{this}}</i>{{/each}}</div>{{/each}}`,
		Context{Data: map[string]any{
			"projects": []any{
				map[string]any{
					"name": "cv",
					"tags": []any{"go"},
				},
			},
		}},
	)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "<div>cv<i>go</i></div>" {
		t.Errorf("out = %q", out)
	}
}
