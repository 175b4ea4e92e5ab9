package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("expired token")
	ErrInvalidCreds    = errors.New("invalid credentials")
	ErrWeakPassword    = errors.New("password does not meet requirements")
	ErrInvalidUsername = errors.New("invalid username")
)

// TokenTTL is how long a login token stays valid.
const TokenTTL = 7 * 24 * time.Hour

func validateUsername(username string) error {
	if len(username) < 3 {
		return fmt.Errorf("must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("must be at most 50 characters")
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return fmt.Errorf("must contain only letters, numbers, underscores, and hyphens")
		}
	}
	return nil
}

func validatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters", ErrWeakPassword)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if !hasNumber {
		missing = append(missing, "number")
	}
	if !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: must contain at least one %s", ErrWeakPassword, strings.Join(missing, ", "))
	}

	return nil
}

// HashPassword checks password strength and returns a bcrypt hash suitable
// for AUTH_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if err := validatePasswordStrength(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AuthService authenticates the single operator account configured at startup.
type AuthService struct {
	username     string
	passwordHash []byte
	secretKey    string
	now          func() time.Time
}

func NewAuthService(username, passwordHash, secretKey string) (*AuthService, error) {
	if err := validateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUsername, err)
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("password hash: %w", err)
	}
	if secretKey == "" {
		return nil, errors.New("auth secret must not be empty")
	}
	return &AuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		secretKey:    secretKey,
		now:          time.Now,
	}, nil
}

func (s *AuthService) ValidatePassword(username, password string) error {
	userOK := hmac.Equal([]byte(username), []byte(s.username))
	// Always compare so a wrong username costs the same as a wrong password.
	pwErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || pwErr != nil {
		return ErrInvalidCreds
	}
	return nil
}

func (s *AuthService) sign(timestamp, username string) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + ":" + username))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// GenerateToken issues "timestamp:username:signature".
func (s *AuthService) GenerateToken(username string) (string, error) {
	if username != s.username {
		return "", ErrInvalidCreds
	}
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	return timestamp + ":" + username + ":" + s.sign(timestamp, username), nil
}

// ValidateToken returns the username a valid token was issued to.
func (s *AuthService) ValidateToken(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}

	timestamp, username, signature := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(signature), []byte(s.sign(timestamp, username))) {
		return "", ErrInvalidToken
	}
	if username != s.username {
		return "", ErrInvalidToken
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if s.now().After(time.Unix(ts, 0).Add(TokenTTL)) {
		return "", ErrExpiredToken
	}

	return username, nil
}
