package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Offering, error)
	ListByExpert(ctx context.Context, db *gorm.DB, expertID snowflake.ID) ([]Offering, error)
}
