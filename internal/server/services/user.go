// This file implements UserService: registration, login, rotating refresh
// sessions, and the profile endpoint's data.
package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/passwords-you-take-anywhere/server/internal/common"
	"github.com/passwords-you-take-anywhere/server/internal/dbx"
	"github.com/passwords-you-take-anywhere/server/internal/server/auth"
	"github.com/passwords-you-take-anywhere/server/internal/server/config"
	"github.com/passwords-you-take-anywhere/server/internal/server/models"
	"github.com/passwords-you-take-anywhere/server/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Profile is what GET /me returns: the account email and an avatar URL
// seeded with an HMAC of the email under the user's encryption key, so the
// avatar is stable per account but reveals nothing.
type Profile struct {
	Email  string
	Avatar string
}

// UserService provides authentication-related operations:
//   - Register: create accounts
//   - Login: verify credentials and mint tokens
//   - Refresh: rotate refresh sessions and mint new access tokens
//   - Logout: drop a refresh session
//   - Profile: account data for the /me endpoint
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates a new account with a freshly generated encryption key.
// A taken email yields common.ErrorEmailTaken.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, common.ErrorInternal
	}
	user := &models.User{
		Email:         email,
		PasswordHash:  hash,
		EncryptionKey: common.GenerateRandByteArray(32),
	}
	repo := s.repomanager.Users(s.db)
	u, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %v", err)
	}
	return u, nil
}

// Login verifies the email/password pair and, on success, returns a new
// TokenPair. Unknown emails and wrong passwords are indistinguishable.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, user.ID, s.db)
}

// Refresh validates a refresh token, rotates it transactionally, and returns
// a fresh TokenPair. Expired sessions yield ErrSessionExpired.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	repo := s.repomanager.Sessions(s.db)

	session, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching session: %v", err)
	}
	if session.Expires.Before(time.Now()) {
		return nil, common.ErrSessionExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repoTx := s.repomanager.Sessions(tx)
		if err := repoTx.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting session: %v", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, session.UserID, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout removes the refresh session. Unknown tokens are a no-op.
func (s *UserService) Logout(ctx context.Context, refreshToken string) error {
	repo := s.repomanager.Sessions(s.db)
	if err := repo.Delete(ctx, refreshToken); err != nil {
		return fmt.Errorf("error deleting session: %v", err)
	}
	return nil
}

// Profile returns the account's email and avatar URL.
func (s *UserService) Profile(ctx context.Context, userID string) (*Profile, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	return &Profile{Email: user.Email, Avatar: avatarURL(user.Email, user.EncryptionKey)}, nil
}

// --- helpers below ---

func avatarURL(email string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(email))
	seed := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return "https://api.dicebear.com/9.x/glass/svg?seed=" + seed
}

func (s *UserService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	sessionRepo := s.repomanager.Sessions(tx)
	if err := sessionRepo.Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
