package cvdata

// Content 表示存储在 CV Content(JSONB) 中的规范化分区结构。
type Content struct {
	PersonalDetails PersonalDetails `json:"personalDetails"`
	Education       []Education     `json:"education,omitempty"`
	Experience      []Experience    `json:"experience,omitempty"`
	Skills          []Skill         `json:"skills,omitempty"`
	Languages       []Language      `json:"languages,omitempty"`
	Projects        []Project       `json:"projects,omitempty"`
	Certifications  []Certification `json:"certifications,omitempty"`
}

// PersonalDetails 描述简历头部的个人信息。
type PersonalDetails struct {
	FullName string `json:"fullName,omitempty"`
	JobTitle string `json:"jobTitle,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Website  string `json:"website,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

type Education struct {
	Institution string `json:"institution,omitempty"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	Description string `json:"description,omitempty"`
}

type Experience struct {
	Company     string `json:"company,omitempty"`
	Position    string `json:"position,omitempty"`
	Location    string `json:"location,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	Current     bool   `json:"current,omitempty"`
	Description string `json:"description,omitempty"`
}

type Skill struct {
	Name  string `json:"name,omitempty"`
	Level string `json:"level,omitempty"`
}

type Language struct {
	Name        string `json:"name,omitempty"`
	Proficiency string `json:"proficiency,omitempty"`
}

type Project struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
}

type Certification struct {
	Name   string `json:"name,omitempty"`
	Issuer string `json:"issuer,omitempty"`
	Date   string `json:"date,omitempty"`
	URL    string `json:"url,omitempty"`
}

// SectionNames 列出可由模板启用/禁用的分区，顺序即默认展示顺序。
var SectionNames = []string{
	"education",
	"experience",
	"skills",
	"languages",
	"projects",
	"certifications",
}
