package collector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrUnknownAccount rejects events whose account does not exist.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrEventNotAllowed rejects event types outside the account's plan.
	ErrEventNotAllowed = errors.New("event type not allowed for subscription plan")
)

// Gateway authorizes one inbound event against the owning account's
// entitlement tier and persists it.
type Gateway struct {
	store  *Store
	logger *slog.Logger
}

func NewGateway(store *Store, logger *slog.Logger) *Gateway {
	return &Gateway{store: store, logger: logger.With("component", "gateway")}
}

// Ingest validates and appends the event. When the event carries an
// identified email it also upserts the user's identity, latest seen wins.
func (g *Gateway) Ingest(ctx context.Context, event Event) error {
	account, err := g.store.GetAccount(ctx, event.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, event.AccountID)
		}
		return fmt.Errorf("look up account: %w", err)
	}
	if !account.Plan.Allows(event.Type) {
		return fmt.Errorf("%w: %s on plan %s", ErrEventNotAllowed, event.Type, account.Plan)
	}

	if err := g.store.InsertEvent(ctx, event); err != nil {
		return err
	}
	if event.ClientEmail != "" {
		if err := g.store.UpsertIdentity(ctx, event.AccountID, event.UserID, event.ClientEmail); err != nil {
			return err
		}
	}
	g.logger.Debug("event ingested", "account_id", event.AccountID, "user_id", event.UserID, "event_type", string(event.Type))
	return nil
}
