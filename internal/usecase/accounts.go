package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/asmraihan/fluidiy-lab-app/internal/logging"
	"github.com/asmraihan/fluidiy-lab-app/internal/repository"
)

var (
	// ErrEmailTaken indicates a signup against an existing email.
	ErrEmailTaken = errors.New("usecase: email already registered")
	// ErrUserNotFound indicates a signin for an unknown email.
	ErrUserNotFound = errors.New("usecase: user not found")
	// ErrInvalidPassword indicates a signin with a wrong password.
	ErrInvalidPassword = errors.New("usecase: invalid password")
)

// UserRepository defines the persistence operations needed by the
// account flow.
type UserRepository interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*repository.User, error)
	FindUserByEmail(ctx context.Context, email string) (*repository.User, error)
	FindUserByID(ctx context.Context, id int64) (*repository.User, error)
}

// TokenIssuer mints bearer tokens for verified identities.
type TokenIssuer interface {
	Issue(userID int64, email string) (string, error)
}

// Account is the public view of a registered user.
type Account struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// AccountUseCase encapsulates signup and signin.
type AccountUseCase struct {
	repo     UserRepository
	tokens   TokenIssuer
	logger   *zap.Logger
	hashCost int
}

// NewAccountUseCase constructs a new account use case.
func NewAccountUseCase(repo UserRepository, tokens TokenIssuer, logger *zap.Logger) *AccountUseCase {
	return &AccountUseCase{
		repo:     repo,
		tokens:   tokens,
		logger:   logger.Named("account_usecase"),
		hashCost: bcrypt.DefaultCost,
	}
}

// SignUp registers a new account and issues its first token.
func (uc *AccountUseCase) SignUp(ctx context.Context, email, password string) (*Account, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), uc.hashCost)
	if err != nil {
		return nil, "", logging.NewOperationError("usecase.hash_password", "", err)
	}

	user, err := uc.repo.CreateUser(ctx, email, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, "", ErrEmailTaken
		}
		wrapped := logging.NewOperationError("usecase.create_user", "", err)
		uc.logger.Error("failed to create user", zap.Error(wrapped))
		return nil, "", wrapped
	}

	signed, err := uc.tokens.Issue(user.ID, user.Email)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.issue_token", "", err)
		uc.logger.Error("failed to issue token", zap.Error(wrapped))
		return nil, "", wrapped
	}

	return &Account{ID: user.ID, Email: user.Email}, signed, nil
}

// SignIn verifies credentials and issues a fresh token. Unknown email
// and wrong password are reported as distinct errors so the boundary
// can map them to distinct status codes.
func (uc *AccountUseCase) SignIn(ctx context.Context, email, password string) (*Account, string, error) {
	user, err := uc.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrUserNotFound
		}
		wrapped := logging.NewOperationError("usecase.find_user", "", err)
		uc.logger.Error("failed to look up user", zap.Error(wrapped))
		return nil, "", wrapped
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidPassword
	}

	signed, err := uc.tokens.Issue(user.ID, user.Email)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.issue_token", "", err)
		uc.logger.Error("failed to issue token", zap.Error(wrapped))
		return nil, "", wrapped
	}

	return &Account{ID: user.ID, Email: user.Email}, signed, nil
}

// GetAccount loads the public profile for an authenticated identity.
func (uc *AccountUseCase) GetAccount(ctx context.Context, id int64) (*Account, error) {
	user, err := uc.repo.FindUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, logging.NewOperationError("usecase.find_user", "", err)
	}
	return &Account{ID: user.ID, Email: user.Email}, nil
}
