package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/teamride-labs/teamride/internal/clock"
	organizationdomain "github.com/teamride-labs/teamride/internal/organization/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   organizationdomain.Repository
	SubSvc subscriptiondomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   organizationdomain.Repository
	subSvc subscriptiondomain.Service
}

func NewService(p ServiceParam) organizationdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("organization.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		subSvc: p.SubSvc,
	}
}

func (s *Service) Create(ctx context.Context, name string) (*organizationdomain.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, organizationdomain.ErrInvalidName
	}

	now := s.clock.Now(ctx)
	org := &organizationdomain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The org and its free-tier record are created atomically so every
	// organization always has exactly one subscription record.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, org); err != nil {
			return err
		}
		_, err := s.subSvc.CreateFreeRecord(ctx, tx, org.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization registered",
		zap.Int64("org_id", int64(org.ID)),
		zap.String("name", org.Name))
	return org, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*organizationdomain.Organization, error) {
	return s.repo.FindByID(ctx, s.db, id)
}
