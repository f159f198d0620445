package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
)

type storeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.StoreAccount, error)
	Disconnect(ctx context.Context, userID, id uuid.UUID) (bool, error)
}

// Service exposes store account operations.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*StoreAccountDTO, error)
	Disconnect(ctx context.Context, userID, id uuid.UUID) (*StoreAccountDTO, error)
}

type service struct {
	repo storeRepository
}

// NewService builds a store account service.
func NewService(repo storeRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*StoreAccountDTO, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store account")
	}
	return FromModel(account), nil
}

// Disconnect wipes the account's credentials. Accounts the user does not own are reported as
// not found.
func (s *service) Disconnect(ctx context.Context, userID, id uuid.UUID) (*StoreAccountDTO, error) {
	ok, err := s.repo.Disconnect(ctx, userID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "disconnect store account")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store account not found")
	}
	return s.Get(ctx, id)
}
