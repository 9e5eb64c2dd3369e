package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	offeringdomain "github.com/mentorlane/mentorlane/internal/offering/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() offeringdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*offeringdomain.Offering, error) {
	var item offeringdomain.Offering
	err := db.WithContext(ctx).Raw(
		`SELECT id, expert_id, title, duration_minutes, price_amount, currency, active, created_at, updated_at
		 FROM offerings
		 WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByExpert(ctx context.Context, db *gorm.DB, expertID snowflake.ID) ([]offeringdomain.Offering, error) {
	var items []offeringdomain.Offering
	err := db.WithContext(ctx).Raw(
		`SELECT id, expert_id, title, duration_minutes, price_amount, currency, active, created_at, updated_at
		 FROM offerings
		 WHERE expert_id = ?
		 ORDER BY created_at DESC`,
		expertID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
