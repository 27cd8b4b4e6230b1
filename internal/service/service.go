package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/agriconnect/internal/metrics"
	"github.com/Dan9191/agriconnect/internal/models"
	"github.com/Dan9191/agriconnect/internal/password"
	"github.com/Dan9191/agriconnect/internal/repository"
)

// User-facing result messages
const (
	MsgSignupSuccess      = "Sign up successful! You can now log in."
	MsgUsernameTaken      = "Username already exists."
	MsgPasswordTooLong    = "Password is too long."
	MsgLoginSuccess       = "Login successful!"
	MsgInvalidCredentials = "Invalid username or password."
)

// AccountStore is the persistence the service needs
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	FindAccountByUsername(ctx context.Context, username string) (*models.Account, error)
}

// Service handles business logic
type Service struct {
	repo    AccountStore
	hasher  *password.Hasher
	log     *logrus.Logger
	metrics metrics.Recorder

	dummyOnce sync.Once
	dummy     string
}

// NewService initializes a new service
func NewService(repo AccountStore, hasher *password.Hasher, log *logrus.Logger, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{repo: repo, hasher: hasher, log: log, metrics: rec}
}

// Register creates a new account with a hashed password.
// A taken username yields a failed Result and a nil error; any other
// failure is returned as an error.
func (s *Service) Register(ctx context.Context, username, pw string) (models.Result, error) {
	start := time.Now()
	hashed, err := s.hasher.Hash(pw)
	s.metrics.RecordHashDuration(time.Since(start))
	if errors.Is(err, password.ErrPasswordTooLong) {
		s.metrics.RecordAuth(metrics.OpRegister, metrics.OutcomeInvalid)
		return models.Failure(MsgPasswordTooLong), nil
	}
	if err != nil {
		s.metrics.RecordAuth(metrics.OpRegister, metrics.OutcomeError)
		return models.Result{}, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Username:     username,
		PasswordHash: hashed,
	}

	// Uniqueness is left to the store; checking first would race.
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			s.log.WithField("username", username).Info("Registration rejected: username taken")
			s.metrics.RecordAuth(metrics.OpRegister, metrics.OutcomeDuplicate)
			return models.Failure(MsgUsernameTaken), nil
		}
		s.metrics.RecordAuth(metrics.OpRegister, metrics.OutcomeError)
		return models.Result{}, err
	}

	s.log.WithFields(logrus.Fields{
		"username":   account.Username,
		"account_id": account.ID,
		"scheme":     s.hasher.Scheme(),
	}).Info("User registered")
	s.metrics.RecordAuth(metrics.OpRegister, metrics.OutcomeSuccess)
	return models.Success(MsgSignupSuccess), nil
}

// Login checks a username and password against the stored account.
// Unknown usernames and wrong passwords produce the same failed Result.
func (s *Service) Login(ctx context.Context, username, pw string) (models.Result, error) {
	account, err := s.repo.FindAccountByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		s.burnVerify(pw)
		s.log.WithField("username", username).Info("Login rejected")
		s.metrics.RecordAuth(metrics.OpLogin, metrics.OutcomeInvalid)
		return models.Failure(MsgInvalidCredentials), nil
	}
	if err != nil {
		s.metrics.RecordAuth(metrics.OpLogin, metrics.OutcomeError)
		return models.Result{}, err
	}

	start := time.Now()
	ok, err := s.hasher.Verify(account.PasswordHash, pw)
	s.metrics.RecordHashDuration(time.Since(start))
	if err != nil {
		s.metrics.RecordAuth(metrics.OpLogin, metrics.OutcomeError)
		return models.Result{}, fmt.Errorf("failed to verify password for account %d: %w", account.ID, err)
	}
	if !ok {
		s.log.WithField("username", username).Info("Login rejected")
		s.metrics.RecordAuth(metrics.OpLogin, metrics.OutcomeInvalid)
		return models.Failure(MsgInvalidCredentials), nil
	}

	s.log.WithField("username", account.Username).Info("User logged in")
	s.metrics.RecordAuth(metrics.OpLogin, metrics.OutcomeSuccess)
	return models.Success(MsgLoginSuccess), nil
}

// burnVerify runs one verification against a throwaway hash so that
// unknown usernames take about as long as wrong passwords.
func (s *Service) burnVerify(pw string) {
	s.dummyOnce.Do(func() {
		hashed, err := s.hasher.Hash("agriconnect-dummy")
		if err != nil {
			s.log.WithError(err).Warn("Failed to prepare dummy hash")
			return
		}
		s.dummy = hashed
	})
	if s.dummy != "" {
		_, _ = s.hasher.Verify(s.dummy, pw)
	}
}
