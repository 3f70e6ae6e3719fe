package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"cvstudio/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&database.User{}, &database.CV{}, &database.Template{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

const testTemplateData = `{
	"html": "<header><h1>{{personalDetails.fullName}}</h1><p>{{personalDetails.jobTitle}}</p></header>{{{divider}}}{{#if experience}}<section class=\"experience\">{{#each experience}}<article><h2>{{position}}</h2><span>{{company}}</span><time>{{startDate}}</time></article>{{/each}}</section>{{/if}}",
	"css": ".experience { color: var(--primary-color); }",
	"fragments": {"divider": "<hr class=\"divider\">"}
}`

func seedTemplate(t *testing.T, db *gorm.DB, premium bool) *database.Template {
	t.Helper()
	tpl := &database.Template{
		Name:         "Classic",
		Premium:      premium,
		Sections:     []byte(`{"experience": {"enabled": true, "position": "full", "order": 1}}`),
		Styles:       []byte(`{"primaryColor": "#2563eb"}`),
		TemplateData: []byte(testTemplateData),
		DefaultData:  []byte(`{"personalDetails": {"fullName": "Sample Person", "jobTitle": "Engineer"}}`),
	}
	if err := db.Create(tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl
}

func seedCV(t *testing.T, db *gorm.DB, userID, templateID uint, content string) *database.CV {
	t.Helper()
	cv := &database.CV{
		Title:      "My Resume",
		Content:    []byte(content),
		UserID:     userID,
		TemplateID: templateID,
	}
	if err := db.Create(cv).Error; err != nil {
		t.Fatalf("seed cv: %v", err)
	}
	return cv
}

func TestComposeCVDocument_Deterministic(t *testing.T) {
	db := newTestDB(t)
	tpl := seedTemplate(t, db, false)
	cv := seedCV(t, db, 1, tpl.ID, `{
		"personalDetails": {"fullName": "Ada Lovelace", "jobTitle": "Analyst"},
		"experience": [{"position": "Programmer", "company": "Analytical Engines", "startDate": "1843-07-01"}]
	}`)

	g := New(db)
	principal := Principal{UserID: 1}

	first, err := g.ComposeCVDocument(context.Background(), cv.ID, principal)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	second, err := g.ComposeCVDocument(context.Background(), cv.ID, principal)
	if err != nil {
		t.Fatalf("compose again: %v", err)
	}

	if first.HTML != second.HTML {
		t.Error("same cv and template produced different documents")
	}
	if first.Title != "My Resume" {
		t.Errorf("title = %q, want cv title", first.Title)
	}

	for _, want := range []string{
		"Ada Lovelace",
		"Analytical Engines",
		"<time>Jul 1843</time>",
		"--primary-color: #2563eb;",
		`<hr class="divider">`,
		`id="document-root"`,
	} {
		if !strings.Contains(first.HTML, want) {
			t.Errorf("document missing %q", want)
		}
	}
}

func TestComposeCVDocument_MigratesLegacyKeys(t *testing.T) {
	db := newTestDB(t)
	tpl := seedTemplate(t, db, false)
	cv := seedCV(t, db, 1, tpl.ID, `{
		"personalInfo": {"fullName": "Old Record", "jobTitle": "Archivist"},
		"workExperience": [{"position": "Clerk", "company": "Registry", "startDate": "2001-02-03"}]
	}`)

	g := New(db)
	doc, err := g.ComposeCVDocument(context.Background(), cv.ID, Principal{UserID: 1})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if !strings.Contains(doc.HTML, "Old Record") {
		t.Error("personalInfo was not migrated to personalDetails")
	}
	if !strings.Contains(doc.HTML, "Registry") {
		t.Error("workExperience was not migrated to experience")
	}
	if !strings.Contains(doc.HTML, "Feb 2001") {
		t.Error("migrated section dates were not formatted")
	}

	// 迁移只发生在内存里，存储中的记录保持原样。
	var stored database.CV
	if err := db.First(&stored, cv.ID).Error; err != nil {
		t.Fatalf("reload cv: %v", err)
	}
	if !strings.Contains(string(stored.Content), "personalInfo") {
		t.Error("stored content was rewritten")
	}
}

func TestComposeCVDocument_DisabledSectionBlanked(t *testing.T) {
	db := newTestDB(t)
	tpl := &database.Template{
		Name:         "No Experience",
		Sections:     []byte(`{"experience": {"enabled": false}}`),
		TemplateData: []byte(testTemplateData),
	}
	if err := db.Create(tpl).Error; err != nil {
		t.Fatalf("seed template: %v", err)
	}
	cv := seedCV(t, db, 1, tpl.ID, `{
		"personalDetails": {"fullName": "Full Data"},
		"experience": [{"position": "Hidden", "company": "Hidden Inc"}]
	}`)

	g := New(db)
	doc, err := g.ComposeCVDocument(context.Background(), cv.ID, Principal{UserID: 1})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	if strings.Contains(doc.HTML, "Hidden Inc") {
		t.Error("disabled section data leaked into the document")
	}
	if !strings.Contains(doc.HTML, "Full Data") {
		t.Error("enabled content missing")
	}
}

func TestComposeCVDocument_OwnershipAndMissing(t *testing.T) {
	db := newTestDB(t)
	tpl := seedTemplate(t, db, false)
	cv := seedCV(t, db, 1, tpl.ID, `{}`)

	g := New(db)

	var notFound *NotFoundError
	if _, err := g.ComposeCVDocument(context.Background(), cv.ID, Principal{UserID: 2}); !errors.As(err, &notFound) {
		t.Errorf("foreign cv: got %v, want NotFoundError", err)
	}
	if _, err := g.ComposeCVDocument(context.Background(), 9999, Principal{UserID: 1}); !errors.As(err, &notFound) {
		t.Errorf("missing cv: got %v, want NotFoundError", err)
	}

	// 模板被删除后简历无法渲染。
	orphan := seedCV(t, db, 1, 8888, `{}`)
	if _, err := g.ComposeCVDocument(context.Background(), orphan.ID, Principal{UserID: 1}); !errors.As(err, &notFound) {
		t.Errorf("dangling template: got %v, want NotFoundError", err)
	}
}

func TestComposeCVDocument_PremiumGate(t *testing.T) {
	db := newTestDB(t)
	tpl := seedTemplate(t, db, true)
	cv := seedCV(t, db, 1, tpl.ID, `{"personalDetails": {"fullName": "Gated"}}`)

	g := New(db)

	var forbidden *ForbiddenError
	if _, err := g.ComposeCVDocument(context.Background(), cv.ID, Principal{UserID: 1}); !errors.As(err, &forbidden) {
		t.Errorf("free user on premium template: got %v, want ForbiddenError", err)
	}

	if _, err := g.ComposeCVDocument(context.Background(), cv.ID, Principal{UserID: 1, IsPremium: true}); err != nil {
		t.Errorf("premium user rejected: %v", err)
	}
	if _, err := g.ComposeCVDocument(context.Background(), cv.ID, Principal{UserID: 1, IsAdmin: true}); err != nil {
		t.Errorf("admin rejected: %v", err)
	}
}

func TestComposeTemplatePreview_UsesDefaultData(t *testing.T) {
	db := newTestDB(t)
	tpl := seedTemplate(t, db, false)

	g := New(db)
	doc, err := g.ComposeTemplatePreview(context.Background(), tpl.ID, Principal{UserID: 1})
	if err != nil {
		t.Fatalf("compose preview: %v", err)
	}

	if !strings.Contains(doc.HTML, "Sample Person") {
		t.Error("preview does not render defaultData")
	}
	if doc.Title != "Classic" {
		t.Errorf("title = %q, want template name", doc.Title)
	}
}

func TestResolveCV_ExposesSectionsConfig(t *testing.T) {
	db := newTestDB(t)
	tpl := seedTemplate(t, db, false)
	cv := seedCV(t, db, 1, tpl.ID, `{}`)

	g := New(db)
	resolved, err := g.ResolveCV(context.Background(), cv.ID, Principal{UserID: 1})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	sections, ok := resolved.Data["sections"].(map[string]any)
	if !ok {
		t.Fatal("sections config not exposed in binding data")
	}
	experience, ok := sections["experience"].(map[string]any)
	if !ok {
		t.Fatal("experience section config missing")
	}
	if pos := experience["position"]; pos != "full" {
		t.Errorf("position = %v, want full", pos)
	}
}
