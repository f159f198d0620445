package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-central/api/middleware"
	"github.com/angelmondragon/dropship-central/api/responses"
	"github.com/angelmondragon/dropship-central/api/validators"
	"github.com/angelmondragon/dropship-central/internal/stores"
	pkgerrors "github.com/angelmondragon/dropship-central/pkg/errors"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

type StoreService interface {
	Get(ctx context.Context, id uuid.UUID) (*stores.StoreAccountDTO, error)
	Disconnect(ctx context.Context, userID, id uuid.UUID) (*stores.StoreAccountDTO, error)
}

// StoreGet returns one of the caller's store accounts.
func StoreGet(svc StoreService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, storeID, ok := storeRequest(w, r, logg)
		if !ok {
			return
		}
		account, err := svc.Get(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if account.UserID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "store account not found"))
			return
		}
		responses.WriteSuccess(w, account)
	}
}

// StoreDisconnect clears a store account's credentials.
func StoreDisconnect(svc StoreService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, storeID, ok := storeRequest(w, r, logg)
		if !ok {
			return
		}
		account, err := svc.Disconnect(r.Context(), userID, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, account)
	}
}

func storeRequest(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, uuid.Nil, false
	}
	storeID, err := validators.ParseUUIDParam(r, "storeId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, storeID, true
}
