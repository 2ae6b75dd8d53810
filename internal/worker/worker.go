package worker

import (
	"context"

	"storefront-service/internal/broker"
	"storefront-service/internal/service"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// AccountWorker consumes account events and keeps the identity provider in sync
type AccountWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewAccountWorker creates a new account worker
func NewAccountWorker(consumer *broker.Consumer, identitySync *service.IdentitySync) *AccountWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnAccountDeleted(identitySync.HandleAccountDeleted)
	eventHandler.OnAccountRoleChanged(identitySync.HandleAccountRoleChanged)

	return &AccountWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *AccountWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting account worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AccountWorker) Stop() error {
	w.logger.Info("Stopping account worker...")
	return w.consumer.Close()
}
