package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// UserStore provides CRUD operations for user records backed by SQLite.
type UserStore struct {
	db *sql.DB
}

// Open opens (or creates) the user database in dir.
func Open(dir string) (*UserStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "users.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open user db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &UserStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *UserStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id                     TEXT PRIMARY KEY,
		email                  TEXT NOT NULL DEFAULT '',
		first_name             TEXT NOT NULL DEFAULT '',
		last_name              TEXT NOT NULL DEFAULT '',
		profile_image_url      TEXT NOT NULL DEFAULT '',
		stripe_customer_id     TEXT NOT NULL DEFAULT '',
		stripe_subscription_id TEXT NOT NULL DEFAULT '',
		subscription_status    TEXT NOT NULL DEFAULT 'inactive',
		current_period_end     INTEGER,
		created_at             INTEGER NOT NULL,
		updated_at             INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_stripe_customer_id ON users(stripe_customer_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init user store schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *UserStore) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *UserStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert inserts or updates the user keyed by the identity subject. The
// profile mirror is overwritten each time; billing fields are left untouched
// for existing rows.
func (s *UserStore) Upsert(p Profile) (*User, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("profile id is empty")
	}
	now := time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO users (
			id, email, first_name, last_name, profile_image_url,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			profile_image_url = excluded.profile_image_url,
			updated_at = excluded.updated_at`,
		p.ID, p.Email, p.FirstName, p.LastName, p.ProfileImageURL,
		now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.Get(p.ID)
}

// Get retrieves a user by ID. Returns (nil, nil) when no record exists.
func (s *UserStore) Get(id string) (*User, error) {
	row := s.db.QueryRow(`SELECT
		id, email, first_name, last_name, profile_image_url,
		stripe_customer_id, stripe_subscription_id, subscription_status,
		current_period_end, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByStripeCustomerID retrieves a user by Stripe customer ID.
func (s *UserStore) GetByStripeCustomerID(customerID string) (*User, error) {
	row := s.db.QueryRow(`SELECT
		id, email, first_name, last_name, profile_image_url,
		stripe_customer_id, stripe_subscription_id, subscription_status,
		current_period_end, created_at, updated_at
		FROM users WHERE stripe_customer_id = ?`, customerID)
	return scanUser(row)
}

// UpdateStripeInfo records the billing linkage for a user. Both identifiers
// are stable once set; callers pass the existing customer ID when only the
// subscription changed.
func (s *UserStore) UpdateStripeInfo(id, customerID, subscriptionID string) error {
	res, err := s.db.Exec(`
		UPDATE users SET
			stripe_customer_id = ?, stripe_subscription_id = ?, updated_at = ?
		WHERE id = ?`,
		customerID, subscriptionID, time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update stripe info: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user %q not found", id)
	}
	return nil
}

// UpdateSubscriptionStatus writes through the externally-fetched subscription
// status and, when known, the billing-period boundary.
func (s *UserStore) UpdateSubscriptionStatus(id, status string, periodEnd *time.Time) error {
	res, err := s.db.Exec(`
		UPDATE users SET
			subscription_status = ?, current_period_end = ?, updated_at = ?
		WHERE id = ?`,
		status, nullableTimeUnix(periodEnd), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("user %q not found", id)
	}
	return nil
}

// Count returns the total number of user records.
func (s *UserStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	var periodEnd sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImageURL,
		&u.StripeCustomerID, &u.StripeSubscriptionID, &u.SubscriptionStatus,
		&periodEnd, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if periodEnd.Valid {
		ts := time.Unix(periodEnd.Int64, 0).UTC()
		u.CurrentPeriodEnd = &ts
	}
	return &u, nil
}

func nullableTimeUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
