package service

import (
	"context"

	"storefront-service/internal/access"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// AccountService manages account records and their roles
type AccountService struct {
	store  store.DocumentStore
	gate   *access.Gate
	logger *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(store store.DocumentStore, gate *access.Gate) *AccountService {
	return &AccountService{
		store:  store,
		gate:   gate,
		logger: util.GetLogger(),
	}
}

// Profile holds the fields an account owner may edit
type Profile struct {
	FirstName string
	LastName  string
	Address   *models.Address
}

func (p Profile) validate() error {
	name := models.PersonName{FirstName: p.FirstName, LastName: p.LastName}
	if err := name.Validate(); err != nil {
		return err
	}
	if p.Address != nil {
		return p.Address.Validate()
	}
	return nil
}

// Register creates the caller's account record. New accounts are always customers.
func (s *AccountService) Register(ctx context.Context, caller models.Caller, email string, profile Profile) (*models.Account, error) {
	email, err := models.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := profile.validate(); err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:        caller.AccountID,
		Email:     email,
		Role:      models.RoleCustomer,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Address:   profile.Address,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Account registered", zap.String("account_id", account.ID))
	return account, nil
}

// GetProfile returns the caller's own account
func (s *AccountService) GetProfile(ctx context.Context, caller models.Caller) (*models.Account, error) {
	if err := s.gate.Authorize(caller, access.OpAccountReadOwn); err != nil {
		return nil, err
	}
	return s.store.GetAccount(ctx, caller.AccountID)
}

// UpdateProfile replaces the caller's name and address
func (s *AccountService) UpdateProfile(ctx context.Context, caller models.Caller, profile Profile) (*models.Account, error) {
	if err := s.gate.Authorize(caller, access.OpAccountUpdateOwn); err != nil {
		return nil, err
	}
	if err := profile.validate(); err != nil {
		return nil, err
	}

	account := &models.Account{
		ID:        caller.AccountID,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Address:   profile.Address,
	}
	if err := s.store.UpdateAccountProfile(ctx, account); err != nil {
		return nil, err
	}
	return s.store.GetAccount(ctx, caller.AccountID)
}

// ChangeRole sets the role of another account. Granting or revoking admin requires admin.
// An account moved to staff or admin loses its cart.
func (s *AccountService) ChangeRole(ctx context.Context, caller models.Caller, accountID string, role models.Role) (*models.Account, error) {
	if err := s.gate.Authorize(caller, access.OpAccountChangeRole); err != nil {
		return nil, err
	}
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, err
	}

	var updated *models.Account
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		updated = nil

		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		from := account.Role
		if from == models.RoleAdmin || role == models.RoleAdmin {
			if err := s.gate.Authorize(caller, access.OpAccountGrantAdmin); err != nil {
				return err
			}
		}
		if from == role {
			updated = account
			return nil
		}

		if err := tx.UpdateAccountRole(ctx, accountID, role); err != nil {
			return err
		}
		if role.IsStaff() {
			if err := tx.PutCart(ctx, models.EmptyCart(accountID)); err != nil {
				return err
			}
		}

		event := &models.AccountRoleChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeAccountRoleChanged),
			AccountID: accountID,
			From:      from,
			To:        role,
		}
		if err := enqueue(ctx, tx, models.AggregateAccount, accountID, models.EventTypeAccountRoleChanged, event); err != nil {
			return err
		}

		account.Role = role
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account role changed",
		zap.String("account_id", accountID),
		zap.String("role", string(role)),
		zap.String("by", caller.AccountID))
	return updated, nil
}

// Delete removes an account record and its cart. Its orders are kept.
func (s *AccountService) Delete(ctx context.Context, caller models.Caller, accountID string) error {
	if err := s.gate.Authorize(caller, access.OpAccountDelete); err != nil {
		return err
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Role == models.RoleAdmin {
			if err := s.gate.Authorize(caller, access.OpAccountGrantAdmin); err != nil {
				return err
			}
		}

		if err := tx.DeleteAccount(ctx, accountID); err != nil {
			return err
		}
		event := &models.AccountDeletedEvent{
			BaseEvent: newBaseEvent(models.EventTypeAccountDeleted),
			AccountID: accountID,
		}
		return enqueue(ctx, tx, models.AggregateAccount, accountID, models.EventTypeAccountDeleted, event)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Account deleted",
		zap.String("account_id", accountID),
		zap.String("by", caller.AccountID))
	return nil
}
