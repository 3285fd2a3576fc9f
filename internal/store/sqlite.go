package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to keep SQLITE_BUSY rare
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY REFERENCES users(user_id) ON DELETE CASCADE,
		full_name TEXT NOT NULL,
		age INTEGER NOT NULL,
		education_level TEXT NOT NULL,
		currently_studying TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS career_selections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		selected_careers_json TEXT NOT NULL,
		selection_method TEXT NOT NULL,
		preferences_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_career_selections_user ON career_selections(user_id, created_at);

	CREATE TABLE IF NOT EXISTS test_results (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		test_id TEXT NOT NULL,
		career_id TEXT NOT NULL,
		score REAL NOT NULL,
		answers_json TEXT NOT NULL,
		completed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_test_results_user ON test_results(user_id, completed_at);

	CREATE TABLE IF NOT EXISTS career_preferences (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		primary_career TEXT NOT NULL,
		secondary_career TEXT NOT NULL,
		primary_score REAL NOT NULL,
		secondary_score REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_career_preferences_user ON career_preferences(user_id, created_at);

	CREATE TABLE IF NOT EXISTS completed_resources (
		user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		resource_id TEXT NOT NULL,
		completed_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, resource_id)
	);

	CREATE TABLE IF NOT EXISTS revoked_tokens (
		token_id TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires ON revoked_tokens(expires_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateUser inserts a user and its profile in one transaction.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User, profile *domain.Profile) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to rollback create user", "error", rbErr)
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (user_id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.UserID, user.Email, user.PasswordHash,
		user.CreatedAt.UnixMilli(), user.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return fmt.Errorf("insert user %s: %w", user.Email, domain.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if profile != nil {
		if err := upsertProfile(ctx, tx, profile); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, password_hash, created_at, updated_at
		FROM users WHERE user_id = ?`, userID)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Email, &user.PasswordHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.UnixMilli(createdAt)
	user.UpdatedAt = time.UnixMilli(updatedAt)
	return &user, nil
}

// GetProfile retrieves the profile of a user.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, full_name, age, education_level, currently_studying, updated_at
		FROM profiles WHERE user_id = ?`, userID)

	var p domain.Profile
	var updatedAt int64
	err := row.Scan(&p.UserID, &p.FullName, &p.Age, &p.EducationLevel, &p.CurrentlyStudying, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// UpsertProfile creates or updates a profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *domain.Profile) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return upsertProfile(ctx, s.db, profile)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertProfile(ctx context.Context, db execer, profile *domain.Profile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, full_name, age, education_level, currently_studying, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			full_name = excluded.full_name,
			age = excluded.age,
			education_level = excluded.education_level,
			currently_studying = excluded.currently_studying,
			updated_at = excluded.updated_at`,
		profile.UserID, profile.FullName, profile.Age,
		profile.EducationLevel, profile.CurrentlyStudying,
		profile.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// InsertCareerSelection records the careers picked by a user.
func (s *SQLiteStore) InsertCareerSelection(ctx context.Context, sel *domain.SelectionResult) error {
	careersJSON, err := json.Marshal(sel.CareerIDs)
	if err != nil {
		return fmt.Errorf("marshal selected careers: %w", err)
	}

	var prefsJSON interface{}
	if sel.Preferences != nil {
		b, err := json.Marshal(sel.Preferences)
		if err != nil {
			return fmt.Errorf("marshal preferences: %w", err)
		}
		prefsJSON = string(b)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO career_selections (id, user_id, selected_careers_json, selection_method, preferences_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sel.ID, sel.UserID, string(careersJSON), string(sel.Method), prefsJSON, sel.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert career selection: %w", err)
	}
	return nil
}

// LatestCareerSelection returns the most recent selection of a user.
func (s *SQLiteStore) LatestCareerSelection(ctx context.Context, userID string) (*domain.SelectionResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, selected_careers_json, selection_method, preferences_json, created_at
		FROM career_selections WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID)

	var sel domain.SelectionResult
	var careersJSON, method string
	var prefsJSON sql.NullString
	var createdAt int64

	err := row.Scan(&sel.ID, &sel.UserID, &careersJSON, &method, &prefsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan career selection: %w", err)
	}

	if err := json.Unmarshal([]byte(careersJSON), &sel.CareerIDs); err != nil {
		return nil, fmt.Errorf("decode selected careers: %w", err)
	}
	if prefsJSON.Valid {
		var prefs domain.PreferenceProfile
		if err := json.Unmarshal([]byte(prefsJSON.String), &prefs); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
		sel.Preferences = &prefs
	}
	sel.Method = domain.SelectionMethod(method)
	sel.CreatedAt = time.UnixMilli(createdAt)
	return &sel, nil
}

// InsertTestResult records a submitted assessment.
func (s *SQLiteStore) InsertTestResult(ctx context.Context, result *domain.AssessmentResult) error {
	answersJSON, err := json.Marshal(result.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_results (id, user_id, test_id, career_id, score, answers_json, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.UserID, result.TestID, result.CareerID,
		result.Score, string(answersJSON), result.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert test result: %w", err)
	}
	return nil
}

// ListTestResults returns a user's results, newest first.
func (s *SQLiteStore) ListTestResults(ctx context.Context, userID string) ([]*domain.AssessmentResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, test_id, career_id, score, answers_json, completed_at
		FROM test_results WHERE user_id = ?
		ORDER BY completed_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query test results: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close test result rows", "error", closeErr)
		}
	}()

	var results []*domain.AssessmentResult
	for rows.Next() {
		var r domain.AssessmentResult
		var answersJSON string
		var completedAt int64

		if err := rows.Scan(&r.ID, &r.UserID, &r.TestID, &r.CareerID, &r.Score, &answersJSON, &completedAt); err != nil {
			return nil, fmt.Errorf("scan test result row: %w", err)
		}
		if err := json.Unmarshal([]byte(answersJSON), &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		r.CompletedAt = time.UnixMilli(completedAt)
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test results: %w", err)
	}

	return results, nil
}

// InsertCareerPreference records a primary/secondary ranking.
func (s *SQLiteStore) InsertCareerPreference(ctx context.Context, pref *domain.CareerPreference) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO career_preferences (id, user_id, primary_career, secondary_career, primary_score, secondary_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pref.ID, pref.UserID, pref.PrimaryCareerID, pref.SecondaryCareerID,
		pref.PrimaryScore, pref.SecondaryScore, pref.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert career preference: %w", err)
	}
	return nil
}

// LatestCareerPreference returns the most recent ranking of a user.
func (s *SQLiteStore) LatestCareerPreference(ctx context.Context, userID string) (*domain.CareerPreference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, primary_career, secondary_career, primary_score, secondary_score, created_at
		FROM career_preferences WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID)

	var p domain.CareerPreference
	var createdAt int64
	err := row.Scan(&p.ID, &p.UserID, &p.PrimaryCareerID, &p.SecondaryCareerID,
		&p.PrimaryScore, &p.SecondaryScore, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan career preference: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	return &p, nil
}

// InsertCompletedResource marks a resource completed.
func (s *SQLiteStore) InsertCompletedResource(ctx context.Context, completed *domain.CompletedResource) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completed_resources (user_id, resource_id, completed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, resource_id) DO NOTHING`,
		completed.UserID, completed.ResourceID, completed.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert completed resource: %w", err)
	}
	return nil
}

// ListCompletedResources returns the resources a user has completed.
func (s *SQLiteStore) ListCompletedResources(ctx context.Context, userID string) ([]domain.CompletedResource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, resource_id, completed_at
		FROM completed_resources WHERE user_id = ?
		ORDER BY completed_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query completed resources: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close completed resource rows", "error", closeErr)
		}
	}()

	var out []domain.CompletedResource
	for rows.Next() {
		var c domain.CompletedResource
		var completedAt int64
		if err := rows.Scan(&c.UserID, &c.ResourceID, &completedAt); err != nil {
			return nil, fmt.Errorf("scan completed resource row: %w", err)
		}
		c.CompletedAt = time.UnixMilli(completedAt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed resources: %w", err)
	}
	return out, nil
}

// RevokeToken blocks a token id until it expires.
func (s *SQLiteStore) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_id, expires_at) VALUES (?, ?)
		ON CONFLICT(token_id) DO NOTHING`, tokenID, expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether a token id was revoked.
func (s *SQLiteStore) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM revoked_tokens WHERE token_id = ?`, tokenID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query revoked token: %w", err)
	}
	return true, nil
}

// CleanupRevokedTokens removes revocations of tokens that expired before now.
func (s *SQLiteStore) CleanupRevokedTokens(ctx context.Context, now time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cleanup revoked tokens: %w", err)
	}
	return result.RowsAffected()
}
