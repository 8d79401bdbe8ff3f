package entity

import "github.com/mbeoliero/deskline/pkg/constant"

// Site represents a customer website that visitors open conversations against
type Site struct {
	Id        string `json:"id" gorm:"column:id;primaryKey;size:64"`
	Name      string `json:"name" gorm:"column:name;size:128"`
	Domain    string `json:"domain" gorm:"column:domain;size:255"`
	Status    string `json:"status" gorm:"column:status;size:16"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Site
func (Site) TableName() string {
	return "sites"
}

// IsActive reports whether new conversations may be created against the site
func (s *Site) IsActive() bool {
	return s.Status == constant.SiteStatusActive
}
