// Package auth is the session collaborator: user accounts stored in the
// metadata store, bcrypt password hashes, and signed session tokens that
// carry the owner identifier the file tree is keyed by. The owner is the
// username, so trees live under folders/{username}/... and blobs under
// users/{username}/files/.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftbox/driftbox/internal/constants"
	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metrics"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already taken")
	ErrWeakPassword       = errors.New("password too weak")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrMissingSecret      = errors.New("session secret is required")
)

// User document fields.
const (
	fieldOwner        = "owner"
	fieldPasswordHash = "password_hash"
	fieldCreatedAt    = "created_at"
)

const usersCollection = "users"

// User is an account record.
type User struct {
	Username  string
	Owner     string
	CreatedAt time.Time
}

// Session is a verified login.
type Session struct {
	Username  string
	Owner     string
	ExpiresAt time.Time
	Token     string
}

type claims struct {
	jwt.RegisteredClaims
	Username string `json:"usr"`
}

// Service manages accounts and sessions.
type Service struct {
	store  metadata.Store
	secret []byte
	ttl    time.Duration
	cost   int
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a Service signing tokens with secret.
func NewService(store metadata.Store, secret []byte, ttl time.Duration, logger *logging.Logger) (*Service, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = constants.SessionTTL
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		store:  store,
		secret: secret,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		logger: logger.Component("auth"),
		now:    time.Now,
	}, nil
}

func userDoc(username string) metadata.DocumentRef {
	return metadata.Collection(usersCollection).Doc(username)
}

// ValidatePassword checks the password rules: at least MinPasswordLength
// characters with at least one letter and one digit, and equal to confirm.
func ValidatePassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len([]rune(password)) < constants.MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, constants.MinPasswordLength)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: must contain a letter and a digit", ErrWeakPassword)
	}
	return nil
}

// Register creates an account owned by username.
func (s *Service) Register(ctx context.Context, username, password, confirm string) (*User, error) {
	if err := validation.ValidateName(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := ValidatePassword(password, confirm); err != nil {
		return nil, err
	}

	ref := userDoc(username)
	exists, err := s.store.Exists(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{Username: username, Owner: username, CreatedAt: s.now()}
	doc := metadata.Document{
		fieldOwner:        user.Owner,
		fieldPasswordHash: string(hash),
		fieldCreatedAt:    models.FormatTime(user.CreatedAt),
	}
	if err := s.store.Set(ctx, ref, doc); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().Str("user", username).Msg("User registered")
	return user, nil
}

// Lookup reads an account.
func (s *Service) Lookup(ctx context.Context, username string) (*User, error) {
	doc, err := s.store.Get(ctx, userDoc(username))
	if err != nil {
		return nil, err
	}
	return userFromDoc(username, doc), nil
}

// userFromDoc reads an account record. Records without an owner field
// belong to their username.
func userFromDoc(username string, doc metadata.Document) *User {
	owner := models.StringField(doc, fieldOwner)
	if owner == "" {
		owner = username
	}
	return &User{
		Username:  username,
		Owner:     owner,
		CreatedAt: models.TimeField(doc, fieldCreatedAt),
	}
}

// checkPassword returns the account if password matches. Unknown users and
// wrong passwords both yield ErrInvalidCredentials.
func (s *Service) checkPassword(ctx context.Context, username, password string) (*User, error) {
	if validation.ValidateName(username) != nil {
		return nil, ErrInvalidCredentials
	}
	doc, err := s.store.Get(ctx, userDoc(username))
	if metadata.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	hash := models.StringField(doc, fieldPasswordHash)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return userFromDoc(username, doc), nil
}

// Login verifies the password and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.checkPassword(ctx, username, password)
	metrics.RecordAuthAttempt(err == nil)
	if err != nil {
		s.logger.Warn().Str("user", username).Msg("Login failed")
		return nil, err
	}

	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    constants.AppName,
			Subject:   user.Owner,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Username: username,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	s.logger.Info().Str("user", username).Msg("Logged in")
	return &Session{Username: username, Owner: user.Owner, ExpiresAt: expires.Truncate(time.Second), Token: signed}, nil
}

// Verify checks a token's signature and expiry.
func (s *Service) Verify(token string) (*Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(constants.AppName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no owner", ErrInvalidToken)
	}
	return &Session{
		Username:  c.Username,
		Owner:     c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
		Token:     token,
	}, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, username, current, next, confirm string) error {
	if _, err := s.checkPassword(ctx, username, current); err != nil {
		return err
	}
	if err := ValidatePassword(next, confirm); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.Update(ctx, userDoc(username), metadata.Document{fieldPasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info().Str("user", username).Msg("Password changed")
	return nil
}
