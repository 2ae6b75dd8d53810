package service

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// TokenRevoker invalidates every token issued to an account before a point in time
type TokenRevoker interface {
	RevokeTokensBefore(ctx context.Context, accountID string, at time.Time) error
}

// IdentitySync keeps the identity provider in line with account changes: a deleted
// account, or one whose role changed, has to authenticate again
type IdentitySync struct {
	store   store.DocumentStore
	revoker TokenRevoker
	logger  *zap.Logger
}

// NewIdentitySync creates a new identity sync handler
func NewIdentitySync(store store.DocumentStore, revoker TokenRevoker) *IdentitySync {
	return &IdentitySync{
		store:   store,
		revoker: revoker,
		logger:  util.GetLogger(),
	}
}

// HandleAccountDeleted revokes the tokens of a deleted account
func (is *IdentitySync) HandleAccountDeleted(ctx context.Context, event *models.AccountDeletedEvent) error {
	ctx, span := util.StartSpan(ctx, "IdentitySync.HandleAccountDeleted")
	defer span.End()

	return is.revokeOnce(ctx, event.BaseEvent, event.AccountID, "account_deleted")
}

// HandleAccountRoleChanged revokes the tokens of an account whose role changed, so the
// next token carries the new role
func (is *IdentitySync) HandleAccountRoleChanged(ctx context.Context, event *models.AccountRoleChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "IdentitySync.HandleAccountRoleChanged")
	defer span.End()

	return is.revokeOnce(ctx, event.BaseEvent, event.AccountID, "role_changed")
}

func (is *IdentitySync) revokeOnce(ctx context.Context, base models.BaseEvent, accountID, cause string) error {
	processed, err := is.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		is.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	at := base.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if err := is.revoker.RevokeTokensBefore(ctx, accountID, at); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	util.TokensRevokedTotal.WithLabelValues(cause).Inc()

	if err := is.store.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		is.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	is.logger.Info("Account tokens revoked",
		zap.String("account_id", accountID),
		zap.String("cause", cause))
	return nil
}
