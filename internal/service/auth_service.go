package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"snapify/internal/config"
	"snapify/internal/ids"
	"snapify/internal/models"
	"snapify/internal/repository"
	"snapify/internal/rules"
	"snapify/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
)

type AuthService struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	cfg      config.SecurityConfig
	log      zerolog.Logger
}

func NewAuthService(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	cfg config.SecurityConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	DeviceID    string
	DeviceName  string
	IPAddress   string
	UserAgent   string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         models.User
	DeviceID     string
}

// Register creates an account and signs it in. The first account ever
// registered becomes an admin.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if err := security.CheckPasswordLength(in.Password); err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", rules.ErrInvalidInput, err)
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	}
	role, err := s.users.Create(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	user.Role = role
	if role == models.UserRoleAdmin {
		s.log.Info().Str("user_id", user.ID).Msg("first account registered as admin")
	}

	return s.startSession(ctx, user, in.DeviceID, in.DeviceName, in.IPAddress, in.UserAgent)
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	return s.startSession(ctx, user, in.DeviceID, in.DeviceName, in.IPAddress, in.UserAgent)
}

// Refresh trades a refresh token for a new token pair. The refresh token is
// single use.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceID string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrInvalidCredentials
	}
	session, err := s.sessions.FindByRefreshHash(ctx, security.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if deviceID != "" && session.DeviceID != deviceID {
		return AuthResult{}, ErrInvalidCredentials
	}
	if !session.ExpiresAt.After(time.Now()) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	next, nextHash, err := security.NewRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.sessions.Rotate(ctx, session.ID, nextHash, time.Now().Add(s.cfg.JWTRefreshTTL)); err != nil {
		return AuthResult{}, err
	}

	return s.issue(user, session, next)
}

// Logout ends the session the refresh token belongs to. Unknown tokens are
// ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	session, err := s.sessions.FindByRefreshHash(ctx, security.HashRefreshToken(refreshToken))
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	err = s.sessions.DeleteByID(ctx, session.ID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	return err
}

func (s *AuthService) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

func (s *AuthService) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	err := s.sessions.DeleteByDevice(ctx, userID, deviceID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return fmt.Errorf("session %w", rules.ErrNotFound)
	}
	return err
}

func (s *AuthService) startSession(ctx context.Context, user models.User, deviceID, deviceName, ip, userAgent string) (AuthResult, error) {
	if deviceID == "" {
		deviceID = ids.New()
	}
	if deviceName == "" {
		deviceName = "Unknown Device"
	}

	refreshToken, refreshHash, err := security.NewRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         deviceID,
		DeviceName:       deviceName,
		RefreshTokenHash: refreshHash,
		IPAddress:        ip,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.cfg.JWTRefreshTTL),
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return AuthResult{}, err
	}

	if s.cfg.MaxSessions > 0 {
		if err := s.sessions.Prune(ctx, user.ID, s.cfg.MaxSessions); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("prune sessions failed")
		}
	}

	return s.issue(user, session, refreshToken)
}

func (s *AuthService) issue(user models.User, session models.Session, refreshToken string) (AuthResult, error) {
	accessToken, err := security.IssueAccessToken(s.cfg.JWTAccessSecret, security.Subject{
		UserID:    user.ID,
		SessionID: session.ID,
		DeviceID:  session.DeviceID,
		Role:      string(user.Role),
	}, s.cfg.JWTAccessTTL)
	if err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(s.cfg.JWTAccessTTL),
		User:         user,
		DeviceID:     session.DeviceID,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: a valid email address is required", rules.ErrInvalidInput)
	}
	return email, nil
}
