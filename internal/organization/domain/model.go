package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrInvalidName          = errors.New("invalid_organization_name")
)

// Organization is the billable tenant: a club or team organizing events.
// Profile fields beyond what billing needs live elsewhere.
type Organization struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name      string       `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Organization) TableName() string { return "organizations" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
}

type Service interface {
	// Create registers an organization together with its free-tier
	// subscription record in one transaction.
	Create(ctx context.Context, name string) (*Organization, error)
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)
}
