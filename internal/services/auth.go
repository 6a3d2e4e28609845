package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

const defaultJWTSecret = "cringe-alert-v2-hackathon-secret-key-2026"

var (
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrTokenExpired       = errors.New("Token expired")
	ErrTokenInvalid       = errors.New("Invalid token")
)

type AuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type AuthConfig struct {
	// Users is "user1:pass1,user2:pass2".
	Users     string
	JWTSecret string
	AccessTTL time.Duration
}

func AuthConfigFromEnv() AuthConfig {
	return AuthConfig{
		Users:     envutil.String("AUTH_USERS", ""),
		JWTSecret: envutil.String("JWT_SECRET", defaultJWTSecret),
		AccessTTL: time.Duration(envutil.Int("TOKEN_TTL_HOURS", 24)) * time.Hour,
	}
}

type JWTClaims struct {
	jwt.RegisteredClaims
}

type authService struct {
	log          *logger.Logger
	users        map[string][]byte
	jwtSecretKey string
	accessTTL    time.Duration
	now          func() time.Time
}

func NewAuthService(log *logger.Logger, cfg AuthConfig) (AuthService, error) {
	serviceLog := log.With("service", "AuthService")
	users, err := parseUsers(cfg.Users)
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaultJWTSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if len(users) == 0 {
		serviceLog.Warn("AUTH_USERS is empty; every login will be rejected")
	}
	return &authService{
		log:          serviceLog,
		users:        users,
		jwtSecretKey: cfg.JWTSecret,
		accessTTL:    cfg.AccessTTL,
		now:          time.Now,
	}, nil
}

// parseUsers splits each pair on its first ':' so passwords may contain colons.
func parseUsers(raw string) (map[string][]byte, error) {
	users := map[string][]byte{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		username, password, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		username = strings.TrimSpace(username)
		password = strings.TrimSpace(password)
		if username == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		users[username] = hash
	}
	return users, nil
}

func (as *authService) GetAccessTTL() time.Duration { return as.accessTTL }

func (as *authService) Login(ctx context.Context, username, password string) (string, error) {
	hash, ok := as.users[username]
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		as.log.Warn("Rejected login", "username", username)
		return "", apierr.New(http.StatusUnauthorized, "invalid_credentials", ErrInvalidCredentials)
	}
	token, err := as.generateAccessToken(username)
	if err != nil {
		as.log.Error("Failed to sign access token", "error", err)
		return "", err
	}
	return token, nil
}

func (as *authService) generateAccessToken(subject string) (string, error) {
	now := as.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, apierr.New(http.StatusUnauthorized, "invalid_token", ErrTokenInvalid)
	}
	parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(as.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, apierr.New(http.StatusUnauthorized, "token_expired", ErrTokenExpired)
		}
		return ctx, apierr.New(http.StatusUnauthorized, "invalid_token", ErrTokenInvalid)
	}
	claims, ok := parsedToken.Claims.(*JWTClaims)
	if !ok || !parsedToken.Valid || claims.Subject == "" {
		return ctx, apierr.New(http.StatusUnauthorized, "invalid_token", ErrTokenInvalid)
	}
	rd := &ctxutil.RequestData{
		UserID:      claims.Subject,
		TokenString: tokenString,
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}
