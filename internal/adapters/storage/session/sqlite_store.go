package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"portal/internal/adapters/api"
	"portal/internal/adapters/storage"
	domain "portal/internal/domain/portalsession"
)

// dateLayout sorts lexically in UTC, which DeleteExpired relies on.
const dateLayout = time.RFC3339

const nonceSize = 24

// ErrCorruptTokens means a stored token blob could not be opened, usually
// because the session key changed.
var ErrCorruptTokens = errors.New("stored tokens cannot be decrypted")

// Store persists portal sessions.
type Store interface {
	Create(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	SaveTokens(ctx context.Context, id string, t api.Tokens) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

var _ Store = (*SQLiteStore)(nil)
var _ api.TokenSaver = (*SQLiteStore)(nil)
var _ api.TokenLoader = (*SQLiteStore)(nil)

// SQLiteStore keeps sessions in sqlite with both tokens sealed by secretbox.
// INVARIANT: tokens are never written in the clear
type SQLiteStore struct {
	db  storage.SQLDB
	key [32]byte
	now func() time.Time
}

// NewSQLiteStore creates a session store sealing tokens with key.
func NewSQLiteStore(db storage.SQLDB, key [32]byte) *SQLiteStore {
	return &SQLiteStore{db: db, key: key, now: time.Now}
}

type sealed struct {
	AccessToken  string `json:"a"`
	RefreshToken string `json:"r"`
}

func (s *SQLiteStore) seal(access, refresh string) ([]byte, error) {
	plain, err := json.Marshal(sealed{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *SQLiteStore) open(blob []byte) (sealed, error) {
	if len(blob) < nonceSize+secretbox.Overhead {
		return sealed{}, ErrCorruptTokens
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	plain, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, &s.key)
	if !ok {
		return sealed{}, ErrCorruptTokens
	}
	var out sealed
	if err := json.Unmarshal(plain, &out); err != nil {
		return sealed{}, ErrCorruptTokens
	}
	return out, nil
}

// Create stores a new session.
// PRE: sess passes Validate
// POST: session is retrievable by ID until ExpiresAt
func (s *SQLiteStore) Create(ctx context.Context, sess domain.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	blob, err := s.seal(sess.AccessToken, sess.RefreshToken)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO portal_session (id, user_id, email, name, role, tokens, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Email, sess.Name, sess.Role, blob,
		sess.CreatedAt.UTC().Format(dateLayout), sess.ExpiresAt.UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get loads a live session. Expired rows are removed on sight.
// POST: returns domain.ErrNotFound or domain.ErrExpired when unusable
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Session, error) {
	var sess domain.Session
	var blob []byte
	var createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, name, role, tokens, created_at, expires_at FROM portal_session WHERE id = ?`, id).
		Scan(&sess.ID, &sess.UserID, &sess.Email, &sess.Name, &sess.Role, &blob, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	sess.ExpiresAt, _ = time.Parse(dateLayout, expiresAt)
	if sess.IsExpired(s.now()) {
		_ = s.Delete(ctx, id)
		return domain.Session{}, domain.ErrExpired
	}
	tok, err := s.open(blob)
	if err != nil {
		return domain.Session{}, err
	}
	sess.AccessToken, sess.RefreshToken = tok.AccessToken, tok.RefreshToken
	return sess, nil
}

// SaveTokens replaces the token pair after a refresh.
func (s *SQLiteStore) SaveTokens(ctx context.Context, id string, t api.Tokens) error {
	blob, err := s.seal(t.AccessToken, t.RefreshToken)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE portal_session SET tokens = ? WHERE id = ?`, blob, id)
	if err != nil {
		return fmt.Errorf("update session tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LoadTokens returns the token pair currently stored for id.
func (s *SQLiteStore) LoadTokens(ctx context.Context, id string) (api.Tokens, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT tokens FROM portal_session WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return api.Tokens{}, domain.ErrNotFound
	}
	if err != nil {
		return api.Tokens{}, fmt.Errorf("load session tokens: %w", err)
	}
	tok, err := s.open(blob)
	if err != nil {
		return api.Tokens{}, err
	}
	return api.Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM portal_session WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpired purges every expired session and reports how many went.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM portal_session WHERE expires_at <= ?`,
		s.now().UTC().Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
