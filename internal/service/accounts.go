package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"media-tracker/internal/models"
	"media-tracker/internal/repository"
)

// Session is returned by a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Pseudo    string    `json:"pseudo"`
}

// AccountService registers users and logs them in.
type AccountService struct {
	users  UserStore
	tokens TokenIssuer
	cost   int
	log    *zap.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(users UserStore, tokens TokenIssuer, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountService{
		users:  users,
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		log:    log.Named("accounts"),
	}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *AccountService) SetHashCost(cost int) {
	s.cost = cost
}

// Register creates the account together with its default lists.
func (s *AccountService) Register(ctx context.Context, pseudo, email, password string) (*models.User, error) {
	pseudo = strings.TrimSpace(pseudo)
	email = strings.ToLower(strings.TrimSpace(email))
	if pseudo == "" || email == "" || password == "" {
		return nil, ErrInvalidAccount
	}

	taken, err := s.users.PseudoOrEmailTaken(ctx, pseudo, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if taken {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{Pseudo: pseudo, Email: email, PasswordHash: string(hash)}
	if _, err := s.users.CreateWithDefaults(ctx, user, models.DefaultListNames()); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	s.log.Info("account registered", zap.String("pseudo", pseudo))
	return user, nil
}

// Login checks the password of the account identified by pseudo or email.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if user == nil && strings.Contains(identifier, "@") {
		user, err = s.users.GetByIdentifier(ctx, strings.ToLower(identifier))
		if err != nil {
			return nil, err
		}
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(user.Pseudo, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, Pseudo: user.Pseudo}, nil
}

// Profile returns the account of pseudo.
func (s *AccountService) Profile(ctx context.Context, pseudo string) (*models.User, error) {
	user, err := s.users.GetByPseudo(ctx, pseudo)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if user == nil {
		return nil, ErrAccountNotFound
	}
	return user, nil
}
