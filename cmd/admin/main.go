package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"cvstudio/internal/auth"
	"cvstudio/internal/config"
	"cvstudio/internal/database"
)

func main() {
	var (
		username = flag.String("username", "", "初始管理员用户名（必填）")
		dbHost   = flag.String("db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
		dbPort   = flag.Int("db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
		dbName   = flag.String("db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
		dbUser   = flag.String("db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
		dbPass   = flag.String("db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
		sslMode  = flag.String("db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	)
	flag.Parse()

	u := strings.TrimSpace(*username)
	if u == "" {
		log.Fatal("missing required flag: --username")
	}

	dbCfg, err := loadDatabaseConfig(*dbHost, *dbPort, *dbName, *dbUser, *dbPass, *sslMode)
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}

	if err := db.AutoMigrate(&database.User{}, &database.Template{}); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	var existing database.User
	switch err := db.Where("username = ?", u).First(&existing).Error; {
	case err == nil:
		log.Fatalf("user %q already exists", u)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		log.Fatalf("query user: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user := database.User{
		Username:     u,
		PasswordHash: hashed,
		IsAdmin:      true,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("create user: %v", err)
	}

	if err := seedClassicTemplate(db); err != nil {
		log.Fatalf("seed classic template: %v", err)
	}

	fmt.Printf("已创建初始管理员账号：\n")
	fmt.Printf("用户名: %s\n", u)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：请立即登录并修改密码（该密码仅显示一次）。\n")
}

// seedClassicTemplate 写入内置的 "Classic" 模板，幂等。
func seedClassicTemplate(db *gorm.DB) error {
	var existing database.Template
	switch err := db.Where("name = ?", "Classic").First(&existing).Error; {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return err
	}

	tpl := database.Template{
		Name:         "Classic",
		Description:  "单栏经典版式，适合大多数求职场景。",
		Sections:     []byte(classicSections),
		Styles:       []byte(classicStyles),
		TemplateData: []byte(classicTemplateData),
		DefaultData:  []byte(classicDefaultData),
		Metadata:     []byte(`{"author": "cvstudio", "category": "general", "tags": ["classic", "single-column"]}`),
	}
	return db.Create(&tpl).Error
}

const classicSections = `{
  "education":      {"enabled": true, "position": "full", "order": 2},
  "experience":     {"enabled": true, "position": "full", "order": 1},
  "skills":         {"enabled": true, "position": "full", "order": 3},
  "languages":      {"enabled": true, "position": "full", "order": 4},
  "projects":       {"enabled": true, "position": "full", "order": 5},
  "certifications": {"enabled": false, "position": "full", "order": 6}
}`

const classicStyles = `{
  "primaryColor": "#1f2937",
  "secondaryColor": "#6b7280",
  "backgroundColor": "#ffffff",
  "fontFamily": "Georgia, 'Times New Roman', serif",
  "fontSize": "14px",
  "spacing": "1.25rem",
  "customStyles": {"headerBorder": "2px solid #1f2937"}
}`

const classicTemplateData = `{
  "html": "<header class=\"head\"><h1>{{personalDetails.fullName}}</h1>{{#if personalDetails.jobTitle}}<p class=\"role\">{{personalDetails.jobTitle}}</p>{{/if}}<p class=\"contact\">{{personalDetails.email}} {{personalDetails.phone}} {{personalDetails.address}}</p></header>{{#if personalDetails.summary}}<section class=\"summary\"><p>{{personalDetails.summary}}</p></section>{{/if}}{{{sectionDivider}}}{{#if experience}}<section><h2>Experience</h2>{{#each experience}}<article><h3>{{position}}</h3><p class=\"meta\">{{company}} · {{startDate}} – {{endDate}}</p>{{#if description}}<p>{{description}}</p>{{/if}}</article>{{/each}}</section>{{/if}}{{#if education}}<section><h2>Education</h2>{{#each education}}<article><h3>{{degree}}</h3><p class=\"meta\">{{institution}} · {{startDate}} – {{endDate}}</p></article>{{/each}}</section>{{/if}}{{#if skills}}<section><h2>Skills</h2><ul class=\"inline\">{{#each skills}}<li>{{name}}</li>{{/each}}</ul></section>{{/if}}{{#if languages}}<section><h2>Languages</h2><ul class=\"inline\">{{#each languages}}<li>{{name}} ({{level}})</li>{{/each}}</ul></section>{{/if}}{{#if projects}}<section><h2>Projects</h2>{{#each projects}}<article><h3>{{name}}</h3>{{#if description}}<p>{{description}}</p>{{/if}}</article>{{/each}}</section>{{/if}}",
  "css": ".head { border-bottom: var(--header-border, 1px solid #ccc); padding-bottom: var(--spacing); } .head h1 { color: var(--primary-color); margin: 0; } .role { color: var(--secondary-color); margin: 0.25rem 0; } .contact, .meta { color: var(--secondary-color); font-size: 0.85em; } section { margin-top: var(--spacing); } h2 { color: var(--primary-color); border-bottom: 1px solid var(--secondary-color); } ul.inline { list-style: none; padding: 0; } ul.inline li { display: inline-block; margin-right: 0.75rem; }",
  "fragments": {"sectionDivider": "<hr class=\"divider\">"}
}`

const classicDefaultData = `{
  "personalDetails": {
    "fullName": "Alex Morgan",
    "jobTitle": "Software Engineer",
    "email": "alex.morgan@example.com",
    "phone": "+1 555 0100",
    "address": "Berlin, Germany",
    "summary": "Backend engineer with a focus on reliable distributed systems."
  },
  "experience": [
    {"position": "Senior Engineer", "company": "Acme Corp", "startDate": "2021-03-01", "endDate": "", "description": "Leads the platform team."},
    {"position": "Engineer", "company": "Initech", "startDate": "2018-06-01", "endDate": "2021-02-01", "description": "Built internal billing services."}
  ],
  "education": [
    {"degree": "B.Sc. Computer Science", "institution": "TU Berlin", "startDate": "2014-10-01", "endDate": "2018-05-01"}
  ],
  "skills": [{"name": "Go"}, {"name": "PostgreSQL"}, {"name": "Kubernetes"}],
  "languages": [{"name": "English", "level": "C2"}, {"name": "German", "level": "B2"}],
  "projects": [{"name": "Open-source scheduler", "description": "Maintainer of a cron-compatible job scheduler."}]
}`

func loadDatabaseConfig(host string, port int, name, user, password, sslmode string) (config.DatabaseConfig, error) {
	if strings.TrimSpace(host) == "" {
		host = os.Getenv("DATABASE_HOST")
	}
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if strings.TrimSpace(name) == "" {
		name = os.Getenv("POSTGRES_DB")
	}
	if strings.TrimSpace(user) == "" {
		user = os.Getenv("POSTGRES_USER")
	}
	if strings.TrimSpace(password) == "" {
		password = os.Getenv("POSTGRES_PASSWORD")
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = os.Getenv("DATABASE_SSLMODE")
	}

	if strings.TrimSpace(host) == "" {
		host = "localhost"
	}
	if port <= 0 {
		port = 5432
	}
	if strings.TrimSpace(sslmode) == "" {
		sslmode = "disable"
	}
	if strings.TrimSpace(name) == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if strings.TrimSpace(user) == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if strings.TrimSpace(password) == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslmode,
	}, nil
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
