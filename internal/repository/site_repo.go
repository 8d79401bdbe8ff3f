package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mbeoliero/deskline/internal/entity"
)

// SiteRepo is the repository for site operations
type SiteRepo struct {
	db *gorm.DB
}

// NewSiteRepo creates a new SiteRepo
func NewSiteRepo(db *gorm.DB) *SiteRepo {
	return &SiteRepo{db: db}
}

// Create creates a new site
func (r *SiteRepo) Create(ctx context.Context, site *entity.Site) error {
	return r.db.WithContext(ctx).Create(site).Error
}

// GetById gets site by Id, nil if missing
func (r *SiteRepo) GetById(ctx context.Context, id string) (*entity.Site, error) {
	var site entity.Site
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &site, nil
}
