// Package store provides SQLite-backed persistence for accounts, check-in
// records, and run logs. The check-in idempotency guarantee lives here:
// RecordCheckin never overwrites a terminal outcome for the same day.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/discuzbot/discuzbot/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an account does not exist
var ErrNotFound = errors.New("not found")

// Store provides SQLite-backed persistence
type Store struct {
	db *sql.DB
}

// New creates a Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ---- Accounts ----

const accountColumns = "id, label, username, password, cookie, base_url, mirror_urls, user_agent, enabled, created_at, updated_at"

// ListAccounts returns accounts ordered by id. Disabled accounts are
// included only when includeDisabled is set.
func (s *Store) ListAccounts(includeDisabled bool) ([]*domain.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts"
	if !includeDisabled {
		query += " WHERE enabled"
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// GetAccount retrieves one account by id
func (s *Store) GetAccount(id int64) (*domain.Account, error) {
	rows, err := s.db.Query("SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanAccount(rows)
}

// AddAccount inserts an account and returns its id
func (s *Store) AddAccount(acc *domain.Account) (int64, error) {
	if acc.Label == "" {
		acc.Label = acc.Username
	}
	now := time.Now()
	res, err := s.db.Exec(`
		INSERT INTO accounts (label, username, password, cookie, base_url, mirror_urls, user_agent, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		acc.Label,
		acc.Username,
		acc.Password,
		acc.Cookie,
		acc.BaseURL,
		strings.Join(acc.MirrorURLs, ","),
		acc.UserAgent,
		acc.Enabled,
		now,
		now,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	acc.ID = id
	return id, nil
}

// UpdateAccount saves mutable account fields
func (s *Store) UpdateAccount(acc *domain.Account) error {
	_, err := s.db.Exec(`
		UPDATE accounts
		SET label = ?, username = ?, password = ?, cookie = ?, base_url = ?, mirror_urls = ?, user_agent = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`,
		acc.Label,
		acc.Username,
		acc.Password,
		acc.Cookie,
		acc.BaseURL,
		strings.Join(acc.MirrorURLs, ","),
		acc.UserAgent,
		acc.Enabled,
		time.Now(),
		acc.ID,
	)
	return err
}

// DisableAccount soft-disables an account. Accounts are never deleted while
// history references them.
func (s *Store) DisableAccount(id int64) error {
	_, err := s.db.Exec("UPDATE accounts SET enabled = FALSE, updated_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// Seed imports configuration-supplied accounts exactly once: only when the
// store holds no accounts at all. Afterwards the store is the single source
// of truth and config account lists are ignored.
func (s *Store) Seed(accounts []*domain.Account) (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM accounts").Scan(&count); err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	seeded := 0
	for _, acc := range accounts {
		acc.Enabled = true
		if _, err := s.AddAccount(acc); err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

func scanAccount(rows *sql.Rows) (*domain.Account, error) {
	var acc domain.Account
	var username, password, cookie, baseURL, mirrors, userAgent sql.NullString

	err := rows.Scan(&acc.ID, &acc.Label, &username, &password, &cookie, &baseURL, &mirrors, &userAgent, &acc.Enabled, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	acc.Username = username.String
	acc.Password = password.String
	acc.Cookie = cookie.String
	acc.BaseURL = baseURL.String
	acc.UserAgent = userAgent.String
	if mirrors.String != "" {
		acc.MirrorURLs = strings.Split(mirrors.String, ",")
	}
	return &acc, nil
}

// ---- Check-in records ----

// RecordCheckin inserts the day's record, or leaves an existing terminal
// record untouched. A stored failed outcome may be upgraded by a later
// attempt the same day; success, already_done, and unavailable are final.
// The returned record is what the store holds after the call; applied
// reports whether this attempt's outcome is the stored one.
func (s *Store) RecordCheckin(accountID int64, day string, outcome domain.CheckinOutcome, detail string) (*domain.CheckinRecord, bool, error) {
	// Single statement keeps the insert atomic: a crash mid-run can never
	// leave a half-written row visible.
	_, err := s.db.Exec(`
		INSERT INTO checkin_records (account_id, day, outcome, detail)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, day) DO UPDATE SET
			outcome = excluded.outcome,
			detail = excluded.detail,
			created_at = CURRENT_TIMESTAMP
		WHERE checkin_records.outcome = 'failed'
	`, accountID, day, string(outcome), detail)
	if err != nil {
		return nil, false, err
	}

	rec, err := s.CheckinFor(accountID, day)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, fmt.Errorf("record_checkin: row missing after insert")
	}
	return rec, rec.Outcome == outcome && rec.Detail == detail, nil
}

// CheckinFor returns the record for (account, day), or nil when none exists
func (s *Store) CheckinFor(accountID int64, day string) (*domain.CheckinRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, account_id, day, outcome, detail, created_at
		FROM checkin_records WHERE account_id = ? AND day = ?
	`, accountID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows)
}

// History returns the most recent check-in records for an account
func (s *Store) History(accountID int64, limit int) ([]*domain.CheckinRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, account_id, day, outcome, detail, created_at
		FROM checkin_records WHERE account_id = ?
		ORDER BY day DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.CheckinRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*domain.CheckinRecord, error) {
	var rec domain.CheckinRecord
	var outcome string
	var detail sql.NullString
	if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Day, &outcome, &detail, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Outcome = domain.CheckinOutcome(outcome)
	rec.Detail = detail.String
	return &rec, nil
}

// ---- Profiles ----

// UpsertProfile stores the latest scraped standing for an account, one row
// per account.
func (s *Store) UpsertProfile(accountID int64, p *domain.Profile) error {
	_, err := s.db.Exec(`
		INSERT INTO account_profile (account_id, user_group, points, money, secoin, score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id) DO UPDATE SET
			user_group = excluded.user_group,
			points = excluded.points,
			money = excluded.money,
			secoin = excluded.secoin,
			score = excluded.score,
			updated_at = CURRENT_TIMESTAMP
	`, accountID, p.UserGroup, p.Points, p.Money, p.Secoin, p.Score)
	return err
}

// GetProfile returns the stored profile for an account, or nil when none
// has been scraped yet
func (s *Store) GetProfile(accountID int64) (*domain.Profile, error) {
	rows, err := s.db.Query(`
		SELECT account_id, COALESCE(user_group, ''), points, money, secoin, score, updated_at
		FROM account_profile WHERE account_id = ?
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var p domain.Profile
	var points, money, secoin, score sql.NullInt64
	if err := rows.Scan(&p.AccountID, &p.UserGroup, &points, &money, &secoin, &score, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Points = intPtr(points)
	p.Money = intPtr(money)
	p.Secoin = intPtr(secoin)
	p.Score = intPtr(score)
	return &p, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// ---- Run logs ----

// AppendLog adds one diagnostic line for an account run
func (s *Store) AppendLog(accountID int64, runID, line string) error {
	_, err := s.db.Exec(
		"INSERT INTO run_logs (account_id, run_id, line) VALUES (?, ?, ?)",
		accountID, runID, line,
	)
	return err
}

// Logs returns the most recent log lines for an account, newest first
func (s *Store) Logs(accountID int64, limit int) ([]*domain.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(`
		SELECT id, account_id, COALESCE(run_id, ''), timestamp, line
		FROM run_logs WHERE account_id = ?
		ORDER BY id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.RunID, &e.Timestamp, &e.Line); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// PruneLogs keeps only the newest keep lines per account
func (s *Store) PruneLogs(accountID int64, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
		DELETE FROM run_logs WHERE account_id = ? AND id NOT IN (
			SELECT id FROM run_logs WHERE account_id = ? ORDER BY id DESC LIMIT ?
		)
	`, accountID, accountID, keep)
	return err
}

// ---- Used threads ----

// MarkThreadUsed records that a thread was used as reply material. Returns
// false when the thread was already marked.
func (s *Store) MarkThreadUsed(fid, tid int, url string) (bool, error) {
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO used_threads (fid, tid, url) VALUES (?, ?, ?)",
		fid, tid, url,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ThreadUsed reports whether (fid, tid) was already used
func (s *Store) ThreadUsed(fid, tid int) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM used_threads WHERE fid = ? AND tid = ?", fid, tid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
