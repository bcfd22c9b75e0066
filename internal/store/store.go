// Package store provides persistent server state backed by an embedded
// SQLite database: accounts, news items, bans, trusts, persistent-channel
// topics, and server settings (§3, §6 "Persisted state layout"). It owns the
// database lifecycle; the in-memory registries and access-gate caches are
// kept coherent with it by the callers in internal/server.
//
// Migration design follows the teacher's pattern: SQL statements live in the
// ordered [migrations] slice, each applied exactly once and tracked in
// schema_migrations. Append, never edit or reorder.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nexusbbs/nexusd/internal/logging"
	"github.com/nexusbbs/nexusd/internal/model"
)

var log = logging.For("store")

var migrations = []string{
	// v1 — accounts
	`CREATE TABLE IF NOT EXISTS accounts (
		username_key TEXT PRIMARY KEY,
		username     TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin     INTEGER NOT NULL DEFAULT 0,
		is_shared    INTEGER NOT NULL DEFAULT 0,
		enabled      INTEGER NOT NULL DEFAULT 1,
		permissions  TEXT NOT NULL DEFAULT '[]',
		created_at   INTEGER NOT NULL DEFAULT (unixepoch()),
		locale       TEXT NOT NULL DEFAULT 'en',
		avatar_uri   TEXT NOT NULL DEFAULT ''
	)`,
	// v2 — news
	`CREATE TABLE IF NOT EXISTS news (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		body       TEXT NOT NULL DEFAULT '',
		image      TEXT NOT NULL DEFAULT '',
		author     TEXT NOT NULL,
		author_is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (unixepoch()),
		updated_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v3, v4 — bans / trusts
	`CREATE TABLE IF NOT EXISTS bans (
		ip_or_cidr TEXT PRIMARY KEY,
		nickname   TEXT NOT NULL DEFAULT '',
		reason     TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch()),
		expires_at INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS trusts (
		ip_or_cidr TEXT PRIMARY KEY,
		nickname   TEXT NOT NULL DEFAULT '',
		reason     TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch()),
		expires_at INTEGER
	)`,
	// v5 — settings
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	// v6 — persistent channel topics
	`CREATE TABLE IF NOT EXISTS channel_topics (
		name_key     TEXT PRIMARY KEY,
		topic        TEXT NOT NULL DEFAULT '',
		topic_set_by TEXT NOT NULL DEFAULT ''
	)`,
	// v7 — audit log
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		actor      TEXT NOT NULL,
		action     TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		details    TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v8, v9 — indexes
	`CREATE INDEX IF NOT EXISTS idx_news_author ON news(author)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	// v10 — WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes server-state operations.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		log.WithError(err).Warn("enable WAL mode")
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.WithError(err).Warn("set busy_timeout")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Infof("applied migration v%d", v)
	}
	return nil
}

// Optimize runs PRAGMA optimize for the SQLite query planner (ambient
// housekeeping carried from the teacher's periodic ticker).
func (s *Store) Optimize() error {
	_, err := s.db.Exec(`PRAGMA optimize`)
	return err
}

// ---------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------

func (s *Store) GetSetting(key string) (string, bool, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return val, err == nil, err
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// ---------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------

func permsToJSON(p model.PermissionSet) string {
	b, _ := json.Marshal(p.Slice())
	return string(b)
}

func permsFromJSON(s string) model.PermissionSet {
	var perms []model.Permission
	_ = json.Unmarshal([]byte(s), &perms)
	return model.PermissionSetFromSlice(perms)
}

// CreateAccount inserts a new account. Returns an error (SQLITE constraint)
// if the canonical username already exists.
func (s *Store) CreateAccount(a model.Account) error {
	_, err := s.db.Exec(
		`INSERT INTO accounts(username_key, username, password_hash, is_admin, is_shared, enabled, permissions, locale, avatar_uri)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		model.CanonicalUsername(a.Username), a.Username, a.PasswordHash, a.IsAdmin, a.IsShared, a.Enabled,
		permsToJSON(a.Permissions), a.Locale, a.AvatarURI,
	)
	return err
}

// UpdateAccount overwrites the full row for the account keyed by its
// (unchanged) canonical username.
func (s *Store) UpdateAccount(a model.Account) error {
	res, err := s.db.Exec(
		`UPDATE accounts SET username=?, password_hash=?, is_admin=?, is_shared=?, enabled=?, permissions=?, locale=?, avatar_uri=?
		 WHERE username_key=?`,
		a.Username, a.PasswordHash, a.IsAdmin, a.IsShared, a.Enabled, permsToJSON(a.Permissions), a.Locale, a.AvatarURI,
		model.CanonicalUsername(a.Username),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RenameAccount changes the canonical key (used only for regular accounts;
// the guest account's username is immutable per §3).
func (s *Store) RenameAccount(oldUsername, newUsername string) error {
	res, err := s.db.Exec(
		`UPDATE accounts SET username_key=?, username=? WHERE username_key=?`,
		model.CanonicalUsername(newUsername), newUsername, model.CanonicalUsername(oldUsername),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteAccount(username string) error {
	res, err := s.db.Exec(`DELETE FROM accounts WHERE username_key=?`, model.CanonicalUsername(username))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanAccount(row interface {
	Scan(dest ...any) error
}) (model.Account, error) {
	var a model.Account
	var createdAt int64
	var perms string
	err := row.Scan(&a.Username, &a.PasswordHash, &a.IsAdmin, &a.IsShared, &a.Enabled, &perms, &createdAt, &a.Locale, &a.AvatarURI)
	if err != nil {
		return a, err
	}
	a.Permissions = permsFromJSON(perms)
	a.CreatedAt = time.Unix(createdAt, 0)
	return a, nil
}

func (s *Store) GetAccount(username string) (model.Account, error) {
	row := s.db.QueryRow(
		`SELECT username, password_hash, is_admin, is_shared, enabled, permissions, created_at, locale, avatar_uri
		 FROM accounts WHERE username_key=?`, model.CanonicalUsername(username),
	)
	return scanAccount(row)
}

func (s *Store) AccountCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

func (s *Store) EnabledAdminCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE is_admin=1 AND enabled=1`).Scan(&n)
	return n, err
}

func (s *Store) ListAccounts() ([]model.Account, error) {
	rows, err := s.db.Query(
		`SELECT username, password_hash, is_admin, is_shared, enabled, permissions, created_at, locale, avatar_uri
		 FROM accounts ORDER BY username_key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// News
// ---------------------------------------------------------------------

func (s *Store) CreateNews(n model.NewsItem) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO news(body, image, author, author_is_admin) VALUES(?,?,?,?)`,
		n.Body, n.Image, n.Author, n.AuthorIsAdmin,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) UpdateNews(n model.NewsItem) error {
	res, err := s.db.Exec(
		`UPDATE news SET body=?, image=?, updated_at=unixepoch() WHERE id=?`,
		n.Body, n.Image, n.ID,
	)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteNews(id int64) error {
	res, err := s.db.Exec(`DELETE FROM news WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanNews(row interface{ Scan(dest ...any) error }) (model.NewsItem, error) {
	var n model.NewsItem
	var createdAt, updatedAt int64
	err := row.Scan(&n.ID, &n.Body, &n.Image, &n.Author, &n.AuthorIsAdmin, &createdAt, &updatedAt)
	if err != nil {
		return n, err
	}
	n.CreatedAt = time.Unix(createdAt, 0)
	n.UpdatedAt = time.Unix(updatedAt, 0)
	return n, nil
}

func (s *Store) GetNews(id int64) (model.NewsItem, error) {
	row := s.db.QueryRow(`SELECT id, body, image, author, author_is_admin, created_at, updated_at FROM news WHERE id=?`, id)
	return scanNews(row)
}

func (s *Store) ListNews() ([]model.NewsItem, error) {
	rows, err := s.db.Query(`SELECT id, body, image, author, author_is_admin, created_at, updated_at FROM news ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.NewsItem
	for rows.Next() {
		n, err := scanNews(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------
// Bans / Trusts
// ---------------------------------------------------------------------

func listTable(list string) string {
	if list == "trust" {
		return "trusts"
	}
	return "bans"
}

func (s *Store) UpsertListEntry(list string, e model.ListEntry) error {
	var expires any
	if e.ExpiresAt != nil {
		expires = e.ExpiresAt.Unix()
	}
	_, err := s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s(ip_or_cidr, nickname, reason, created_by, expires_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(ip_or_cidr) DO UPDATE SET nickname=excluded.nickname, reason=excluded.reason,
		   created_by=excluded.created_by, expires_at=excluded.expires_at, created_at=unixepoch()`, listTable(list)),
		e.IPOrCIDR, e.Nickname, e.Reason, e.CreatedBy, expires,
	)
	return err
}

func (s *Store) DeleteListEntry(list, ipOrCIDR string) error {
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE ip_or_cidr=?`, listTable(list)), ipOrCIDR)
	return err
}

func (s *Store) DeleteListEntriesByNickname(list, nickname string) error {
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE nickname=? COLLATE NOCASE`, listTable(list)), nickname)
	return err
}

func (s *Store) ListEntries(list string) ([]model.ListEntry, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT ip_or_cidr, nickname, reason, created_by, created_at, expires_at FROM %s ORDER BY created_at DESC`, listTable(list)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ListEntry
	for rows.Next() {
		var e model.ListEntry
		var createdAt int64
		var expires sql.NullInt64
		if err := rows.Scan(&e.IPOrCIDR, &e.Nickname, &e.Reason, &e.CreatedBy, &createdAt, &expires); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		if expires.Valid {
			t := time.Unix(expires.Int64, 0)
			e.ExpiresAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeExpired removes ban/trust entries past their expiry.
func (s *Store) PurgeExpired(list string) (int64, error) {
	res, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= unixepoch()`, listTable(list)))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------
// Persistent channel topics
// ---------------------------------------------------------------------

func (s *Store) SetChannelTopic(canonicalName, topic, setBy string) error {
	_, err := s.db.Exec(
		`INSERT INTO channel_topics(name_key, topic, topic_set_by) VALUES(?,?,?)
		 ON CONFLICT(name_key) DO UPDATE SET topic=excluded.topic, topic_set_by=excluded.topic_set_by`,
		canonicalName, topic, setBy,
	)
	return err
}

func (s *Store) GetChannelTopic(canonicalName string) (topic, setBy string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT topic, topic_set_by FROM channel_topics WHERE name_key=?`, canonicalName).Scan(&topic, &setBy)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	return topic, setBy, err == nil, err
}

// ---------------------------------------------------------------------
// Audit log
// ---------------------------------------------------------------------

func (s *Store) InsertAudit(actor, action, target, details string) error {
	_, err := s.db.Exec(`INSERT INTO audit_log(actor, action, target, details) VALUES(?,?,?,?)`, actor, action, target, details)
	return err
}
