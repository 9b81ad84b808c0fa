package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidPasscode = errors.New("invalid passcode")
	ErrGateDisabled    = errors.New("no passcode configured")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
)

const (
	tokenScope = "interview"
	issuer     = "interview-concierge"
)

// argon2id parameters for HashPasscode
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// Claims carried by gate tokens
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Config for the passcode gate
type Config struct {
	Passcode     string        // plain passcode
	PasscodeHash string        // bcrypt or argon2id hash, wins over Passcode
	JWTSecret    string        // HS256 signing key
	TokenTTL     time.Duration // lifetime of issued tokens
}

// Service checks passcodes and issues bearer tokens
type Service struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the gate. With neither passcode nor hash set the gate
// is open.
func NewService(cfg Config, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Enabled reports whether requests must carry a token
func (s *Service) Enabled() bool {
	return s.cfg.Passcode != "" || s.cfg.PasscodeHash != ""
}

// Issue exchanges a passcode for a signed token and its expiry
func (s *Service) Issue(passcode string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrGateDisabled
	}
	if !s.matches(passcode) {
		s.logger.Warn("Rejected passcode")
		return "", time.Time{}, ErrInvalidPasscode
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)
	claims := &Claims{
		Scope: tokenScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("Passcode accepted", zap.Time("expires_at", expiresAt))
	return signed, expiresAt, nil
}

// Verify parses and validates a token
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Scope != tokenScope {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) matches(passcode string) bool {
	hash := s.cfg.PasscodeHash
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2(hash, passcode)
	case hash != "":
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.cfg.Passcode), []byte(passcode)) == 1
}

// HashPasscode returns an argon2id hash in the
// $argon2id$v=19$m=65536,t=1,p=4$salt$hash format.
func HashPasscode(passcode string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(passcode), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func verifyArgon2(encoded, passcode string) bool {
	// "", "argon2id", "v=19", "m=...,t=...,p=...", salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(passcode), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
