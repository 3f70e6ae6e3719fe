package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:64"`
	PasswordHash string `gorm:"size:255"`
	IsPremium    bool   `gorm:"default:false"`
	IsAdmin      bool   `gorm:"default:false"`
	CVs          []CV   `gorm:"constraint:OnDelete:CASCADE"`
}

// CV 表示用户填写的一份简历数据。
// Content 以 JSONB 存储规范化的分区结构（personalDetails/education/...）。
type CV struct {
	gorm.Model
	Title            string         `gorm:"size:255"`
	Content          datatypes.JSON `gorm:"type:jsonb"`
	UserID           uint           `gorm:"index"`
	User             User           `gorm:"constraint:OnDelete:CASCADE"`
	TemplateID       uint           `gorm:"index"`
	Public           bool           `gorm:"default:false"`
	PreviewImageURL  string         `gorm:"size:1024"`
	PreviewObjectKey string         `gorm:"size:512"`
}

// Template 表示管理员维护的简历模板。
// TemplateData 中的 html/css 是受信的模板“程序”，只能由管理员写入。
type Template struct {
	gorm.Model
	Name             string         `gorm:"size:255"`
	Description      string         `gorm:"size:1024"`
	Premium          bool           `gorm:"default:false"`
	Sections         datatypes.JSON `gorm:"type:jsonb"`
	Styles           datatypes.JSON `gorm:"type:jsonb"`
	TemplateData     datatypes.JSON `gorm:"type:jsonb"`
	DefaultData      datatypes.JSON `gorm:"type:jsonb"`
	PreviewImageURL  string         `gorm:"size:1024"`
	PreviewObjectKey string         `gorm:"size:512"`
	Metadata         datatypes.JSON `gorm:"type:jsonb"`
}
