package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store encapsulates access to the collector's SQLite database: accounts,
// the append-only event table, and the user identity side-table.
type Store struct {
	db *sql.DB
}

// NewStore constructs a collector data access object.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies schema changes for the account, event, and identity tables.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			plan TEXT NOT NULL CHECK (plan IN ('basic','premium','enterprise')),
			access_key TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			client_email TEXT,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_account_user ON events(account_id, user_id, timestamp DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_events_account_type ON events(account_id, event_type);`,
		`CREATE TABLE IF NOT EXISTS identities (
			account_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			email TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (account_id, user_id)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply collector schema: %w", err)
		}
	}
	return nil
}

// CreateAccount registers a new account with a generated id and access key.
func (s *Store) CreateAccount(ctx context.Context, email string, plan Plan) (Account, error) {
	if strings.TrimSpace(email) == "" {
		return Account{}, errors.New("email required")
	}
	account := Account{
		AccountID: "client_" + uuid.NewString()[:8],
		Email:     email,
		Plan:      plan,
		AccessKey: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(account_id, email, plan, access_key, created_at) VALUES(?, ?, ?, ?, ?)`,
		account.AccountID, account.Email, string(account.Plan), account.AccessKey, account.CreatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GetAccount fetches an account by id. Returns sql.ErrNoRows when unknown.
func (s *Store) GetAccount(ctx context.Context, accountID string) (Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT account_id, email, plan, access_key, created_at FROM accounts WHERE account_id = ?`, accountID))
}

// GetAccountByKey resolves a dashboard access key to its account.
func (s *Store) GetAccountByKey(ctx context.Context, accessKey string) (Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT account_id, email, plan, access_key, created_at FROM accounts WHERE access_key = ?`, accessKey))
}

func (s *Store) scanAccount(row *sql.Row) (Account, error) {
	var (
		account Account
		plan    string
	)
	if err := row.Scan(&account.AccountID, &account.Email, &plan, &account.AccessKey, &account.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	account.Plan = Plan(plan)
	return account, nil
}

// ListAccounts returns all accounts, newest first, without access keys.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, email, plan, created_at FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var (
			account Account
			plan    string
		)
		if err := rows.Scan(&account.AccountID, &account.Email, &plan, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		account.Plan = Plan(plan)
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter accounts: %w", err)
	}
	return accounts, nil
}

// InsertEvent appends one event. The server assigns the timestamp when the
// event carries none.
func (s *Store) InsertEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events(account_id, user_id, event_type, payload, client_email, timestamp)
		 VALUES(?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))`,
		event.AccountID,
		event.UserID,
		string(event.Type),
		string(payload),
		nullIfEmpty(event.ClientEmail),
		utcOrNil(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func utcOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// EventsForUser returns a user's full event history, oldest first.
func (s *Store) EventsForUser(ctx context.Context, accountID, userID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, user_id, event_type, payload, client_email, timestamp
		 FROM events WHERE account_id = ? AND user_id = ? ORDER BY timestamp ASC, id ASC`,
		accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("events for user: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUserIDs enumerates the distinct users seen for an account.
func (s *Store) ListUserIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM events WHERE account_id = ? ORDER BY user_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter user ids: %w", err)
	}
	return ids, nil
}

// UpsertIdentity records the latest-seen email for a user, last write wins.
func (s *Store) UpsertIdentity(ctx context.Context, accountID, userID, email string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities(account_id, user_id, email, updated_at) VALUES(?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(account_id, user_id) DO UPDATE SET email = excluded.email, updated_at = CURRENT_TIMESTAMP`,
		accountID, userID, email,
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// IdentityEmail returns the identified email for a user, if any.
func (s *Store) IdentityEmail(ctx context.Context, accountID, userID string) (string, bool, error) {
	var email string
	err := s.db.QueryRowContext(ctx,
		`SELECT email FROM identities WHERE account_id = ? AND user_id = ?`, accountID, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("identity email: %w", err)
	}
	return email, true, nil
}

// RecentEvents returns the account's latest events, newest first.
func (s *Store) RecentEvents(ctx context.Context, accountID string, filter EventFilter, limit int) ([]Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	where, args := filterClauses(accountID, filter)
	query := fmt.Sprintf(
		`SELECT id, account_id, user_id, event_type, payload, client_email, timestamp
		 FROM events WHERE %s ORDER BY timestamp DESC, id DESC LIMIT ?`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Stats aggregates the account's event history for the dashboard.
func (s *Store) Stats(ctx context.Context, accountID string, filter EventFilter) (Stats, error) {
	where, args := filterClauses(accountID, filter)
	stats := Stats{EventCounts: map[string]int{}}

	var avgDuration, avgDepth sql.NullFloat64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*),
			COUNT(CASE WHEN event_type = 'sessionDuration' THEN 1 END),
			AVG(CASE WHEN event_type = 'sessionDuration' THEN json_extract(payload, '$.duration') END),
			AVG(CASE WHEN event_type = 'scrollDepth' THEN json_extract(payload, '$.depth') END)
		 FROM events WHERE %s`, where), args...,
	).Scan(&stats.TotalEvents, &stats.TotalSessions, &avgDuration, &avgDepth)
	if err != nil {
		return Stats{}, fmt.Errorf("stats totals: %w", err)
	}
	if avgDuration.Valid {
		stats.AvgSessionDuration = int64(avgDuration.Float64 + 0.5)
	}
	if avgDepth.Valid {
		stats.AvgScrollDepth = int(avgDepth.Float64 + 0.5)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT event_type, COUNT(*) FROM events WHERE %s GROUP BY event_type`, where), args...)
	if err != nil {
		return Stats{}, fmt.Errorf("stats event counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			eventType string
			count     int
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return Stats{}, fmt.Errorf("scan event count: %w", err)
		}
		stats.EventCounts[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iter event counts: %w", err)
	}

	topRows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT user_id, COUNT(*) AS cnt FROM events WHERE %s GROUP BY user_id ORDER BY cnt DESC LIMIT 5`, where), args...)
	if err != nil {
		return Stats{}, fmt.Errorf("stats top users: %w", err)
	}
	defer topRows.Close()
	for topRows.Next() {
		var entry UserEventCount
		if err := topRows.Scan(&entry.UserID, &entry.EventCount); err != nil {
			return Stats{}, fmt.Errorf("scan top user: %w", err)
		}
		stats.TopUsers = append(stats.TopUsers, entry)
	}
	if err := topRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iter top users: %w", err)
	}
	return stats, nil
}

func filterClauses(accountID string, filter EventFilter) (string, []any) {
	clauses := []string{"account_id = ?"}
	args := []any{accountID}
	if filter.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Start != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Start.UTC())
	}
	if filter.End != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.End.UTC())
	}
	return strings.Join(clauses, " AND "), args
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			e           Event
			eventType   string
			payloadJSON string
			clientEmail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.UserID, &eventType, &payloadJSON, &clientEmail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = EventType(eventType)
		if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		e.ClientEmail = clientEmail.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter events: %w", err)
	}
	return events, nil
}
