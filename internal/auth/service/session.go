package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/vouch/internal/auth/domain"
	"github.com/aussiebroadwan/vouch/internal/auth/store"
	"github.com/aussiebroadwan/vouch/pkg/cryptox"
	"github.com/aussiebroadwan/vouch/pkg/idx"
	"github.com/aussiebroadwan/vouch/pkg/jwtx"
)

const (
	DefaultSessionCookie = "vouch_session"
	defaultTouchTimeout  = 5 * time.Second
)

// SessionMeta is the client information recorded with a session.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

// IssuedSession is handed to the client once. Only the token fingerprint is
// stored.
type IssuedSession struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// SessionService issues signed session tokens backed by revocable rows.
// A token is valid while its signature checks out, the row is not revoked
// and neither has expired.
type SessionService struct {
	Store  store.Store
	Keys   *jwtx.KeyManager
	Issuer string
	Logger *slog.Logger

	// TTL defaults to jwtx.DefaultSessionTTL.
	TTL time.Duration

	// Cookie is the cookie name sessions travel in.
	Cookie string

	// TouchTimeout bounds the detached lastActiveAt update.
	TouchTimeout time.Duration

	Now func() time.Time

	touches sync.WaitGroup
}

// In returns a copy of the service bound to st, usually a transaction. The
// copy shares no background work with s.
func (s *SessionService) In(st store.Store) *SessionService {
	return &SessionService{
		Store:        st,
		Keys:         s.Keys,
		Issuer:       s.Issuer,
		Logger:       s.Logger,
		TTL:          s.TTL,
		Cookie:       s.Cookie,
		TouchTimeout: s.TouchTimeout,
		Now:          s.Now,
	}
}

// CreateSession signs a token for subjectID and persists its row.
func (s *SessionService) CreateSession(ctx context.Context, subjectID string, meta SessionMeta) (IssuedSession, error) {
	if subjectID == "" {
		return IssuedSession{}, ErrUnauthenticated
	}
	signer := s.Keys.GetSigner()
	if signer == nil {
		return IssuedSession{}, fmt.Errorf("%w: no signing key available", ErrConfiguration)
	}

	ts := now(s.Now)
	ttl := s.TTL
	if ttl <= 0 {
		ttl = jwtx.DefaultSessionTTL
	}
	expiresAt := ts.Add(ttl)
	sid := idx.NewAt(ts).String()

	token, err := signer.Sign(jwtx.NewSessionClaims(subjectID, sid, s.Issuer, ts, expiresAt))
	if err != nil {
		return IssuedSession{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	row := domain.Session{
		ID:           sid,
		SubjectID:    subjectID,
		TokenHash:    cryptox.FingerprintToken(token),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		ExpiresAt:    expiresAt,
		LastActiveAt: ts,
		CreatedAt:    ts,
	}
	if err := s.Store.Sessions().CreateSession(ctx, row); err != nil {
		return IssuedSession{}, storeErr("failed to create session", err)
	}

	return IssuedSession{Token: token, SessionID: sid, ExpiresAt: expiresAt}, nil
}

// VerifySession checks the token locally, then against its row. The
// lastActiveAt bump runs in the background and never fails the request.
func (s *SessionService) VerifySession(ctx context.Context, token string) (domain.Session, error) {
	ts := now(s.Now)

	claims, err := s.Keys.Verifier().VerifyAt(token, ts)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	row, err := s.Store.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrInvalidSession
	}
	if err != nil {
		return domain.Session{}, storeErr("failed to get session", err)
	}

	switch {
	case row.ID != claims.SID || row.SubjectID != claims.Subject:
		return domain.Session{}, ErrInvalidSession
	case row.RevokedAt != nil:
		return domain.Session{}, ErrSessionRevoked
	case !ts.Before(row.ExpiresAt):
		return domain.Session{}, ErrInvalidSession
	}

	s.touch(ctx, row.ID, ts)
	return row, nil
}

// GetSession returns a session row by id.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	row, err := s.Store.Sessions().GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, storeErr("failed to get session", err)
	}
	return row, nil
}

// ListSessions returns the live sessions of subjectID, newest first.
func (s *SessionService) ListSessions(ctx context.Context, subjectID string) ([]domain.Session, error) {
	rows, err := s.Store.Sessions().ListActiveSessions(ctx, subjectID, now(s.Now))
	if err != nil {
		return nil, storeErr("failed to list sessions", err)
	}
	return rows, nil
}

// Revoke ends a session and drops its step-ups. Revoking an already revoked
// session is not an error.
func (s *SessionService) Revoke(ctx context.Context, sessionID, reason string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		changed, err := tx.Sessions().RevokeSession(ctx, sessionID, reason, now(s.Now))
		if err != nil {
			return storeErr("failed to revoke session", err)
		}
		if !changed {
			if _, err := tx.Sessions().GetSession(ctx, sessionID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrSessionNotFound
				}
				return storeErr("failed to get session", err)
			}
		}

		if _, err := tx.StepUps().DeleteStepUpsForSession(ctx, sessionID); err != nil {
			return storeErr("failed to delete step-ups", err)
		}
		return nil
	})
}

// RevokeToken revokes the session a token belongs to.
func (s *SessionService) RevokeToken(ctx context.Context, token, reason string) error {
	row, err := s.Store.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return storeErr("failed to get session", err)
	}
	return s.Revoke(ctx, row.ID, reason)
}

// RevokeAll revokes every live session of subjectID except exceptSessionID,
// which may be empty. It returns how many sessions were revoked.
func (s *SessionService) RevokeAll(ctx context.Context, subjectID, exceptSessionID, reason string) (int64, error) {
	var n int64
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.Sessions().RevokeSubjectSessions(ctx, subjectID, exceptSessionID, reason, now(s.Now))
		if err != nil {
			return storeErr("failed to revoke sessions", err)
		}

		if exceptSessionID == "" {
			_, err = tx.StepUps().DeleteStepUpsForSubject(ctx, subjectID)
			if err != nil {
				return storeErr("failed to delete step-ups", err)
			}
		}
		return nil
	})
	return n, err
}

// CleanupExpired deletes session rows past their expiry.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.Store.Sessions().DeleteExpiredSessions(ctx, now(s.Now))
	if err != nil {
		return 0, storeErr("failed to delete expired sessions", err)
	}
	return n, nil
}

// CookieName is the cookie sessions are carried in.
func (s *SessionService) CookieName() string {
	if s.Cookie == "" {
		return DefaultSessionCookie
	}
	return s.Cookie
}

// Wait blocks until every in-flight lastActiveAt update has finished.
func (s *SessionService) Wait() {
	s.touches.Wait()
}

func (s *SessionService) touch(ctx context.Context, sessionID string, at time.Time) {
	timeout := s.TouchTimeout
	if timeout <= 0 {
		timeout = defaultTouchTimeout
	}

	s.touches.Add(1)
	go func() {
		defer s.touches.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := s.Store.Sessions().TouchSession(ctx, sessionID, at); err != nil {
			s.logger().WarnContext(ctx, "failed to update session activity",
				"session_id", sessionID, "error", err)
		}
	}()
}

func (s *SessionService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
