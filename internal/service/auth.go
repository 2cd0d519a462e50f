package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/logging"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	maxPasswordBytes = 72
)

// UserStore defines the user data access interface consumed by AuthService.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByProviderID(ctx context.Context, provider domain.AuthProvider, providerID string) (*domain.User, error)
	Create(ctx context.Context, user domain.User) (*domain.User, error)
}

// AuthConfig holds token and OAuth configuration.
type AuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	JWTSecret          string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	FrontendURL        string
	BcryptCost         int
	Now                func() time.Time
}

// AuthService handles registration, login and session tokens.
type AuthService struct {
	users      UserStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	cost       int
	dummyHash  []byte
	now        func() time.Time
	google     *oauth2.Config
	github     *oauth2.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, cfg AuthConfig) *AuthService {
	s := &AuthService{
		users:      users,
		jwtSecret:  []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		cost:       cfg.BcryptCost,
		now:        cfg.Now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = time.Hour
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 7 * 24 * time.Hour
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	// Compared against on unknown usernames so both login failures cost the same.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		s.google = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     googleOAuth.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
			RedirectURL:  cfg.FrontendURL + "/auth/google/callback",
		}
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		s.github = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user"},
			RedirectURL:  cfg.FrontendURL + "/auth/github/callback",
		}
	}
	return s
}

// TokenPair holds an access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Register creates a user with a bcrypt password hash. An unknown role falls
// back to observer; a taken username yields domain.ErrConflict.
func (s *AuthService) Register(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if err := checkLength("username", username, 3, 100); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, domain.NewValidationError("password", "is required")
	}
	if len(password) > maxPasswordBytes {
		return nil, domain.NewValidationError("password", "must be at most %d bytes", maxPasswordBytes)
	}
	if !role.Valid() {
		role = domain.RoleObserver
	}

	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username %q is taken", domain.ErrConflict, username)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashStr := string(hash)

	user, err := s.users.Create(ctx, domain.User{
		Username:     username,
		PasswordHash: &hashStr,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks credentials and issues a token pair. Unknown users and wrong
// passwords fail with the same domain.ErrAuthenticationFailed.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, *TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, nil, domain.ErrAuthenticationFailed
		}
		return nil, nil, err
	}
	if user.PasswordHash == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, nil, domain.ErrAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, domain.ErrAuthenticationFailed
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}
	logging.FromContext(ctx).Info("user logged in", "user_id", user.ID)
	return user, pair, nil
}

// Verify validates an access token and resolves the caller from the stored user.
func (s *AuthService) Verify(ctx context.Context, tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	userID, err := s.parseToken(tokenString, tokenTypeAccess)
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, domain.ErrUnauthorized
		}
		return domain.Identity{}, err
	}
	return domain.Identity{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

// Refresh validates a refresh token and returns a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	userID, err := s.parseToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	return s.generateTokenPair(user)
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AuthService) parseToken(tokenString, wantType string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, domain.ErrUnauthorized
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != wantType {
		return 0, domain.ErrUnauthorized
	}

	userIDFloat, ok := claims["sub"].(float64)
	if !ok {
		return 0, domain.ErrUnauthorized
	}

	return int64(userIDFloat), nil
}

func (s *AuthService) generateTokenPair(user *domain.User) (*TokenPair, error) {
	now := s.now()

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"type": tokenTypeAccess,
		"iat":  now.Unix(),
		"exp":  now.Add(s.accessTTL).Unix(),
	})
	accessStr, err := accessToken.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"type": tokenTypeRefresh,
		"iat":  now.Unix(),
		"exp":  now.Add(s.refreshTTL).Unix(),
	})
	refreshStr, err := refreshToken.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// OAuthEnabled reports whether sign-in with provider is configured.
func (s *AuthService) OAuthEnabled(provider domain.AuthProvider) bool {
	return s.oauthConfig(provider) != nil
}

// OAuthURL returns the provider's authorization URL.
func (s *AuthService) OAuthURL(provider domain.AuthProvider, state string) (string, error) {
	cfg := s.oauthConfig(provider)
	if cfg == nil {
		return "", fmt.Errorf("%w: %s sign-in is not configured", domain.ErrNotFound, provider)
	}
	return cfg.AuthCodeURL(state), nil
}

// OAuthCallback exchanges the authorization code, signs the provider account
// in as an observer on first use and returns a token pair.
func (s *AuthService) OAuthCallback(ctx context.Context, provider domain.AuthProvider, code string) (*domain.User, *TokenPair, error) {
	cfg := s.oauthConfig(provider)
	if cfg == nil {
		return nil, nil, fmt.Errorf("%w: %s sign-in is not configured", domain.ErrNotFound, provider)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s token exchange: %v", domain.ErrAuthenticationFailed, provider, err)
	}

	var profile oauthProfile
	switch provider {
	case domain.AuthProviderGoogle:
		profile, err = fetchGoogleProfile(ctx, cfg.Client(ctx, token))
	case domain.AuthProviderGitHub:
		profile, err = fetchGitHubProfile(ctx, cfg.Client(ctx, token))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s profile: %w", provider, err)
	}

	user, err := s.signInProvider(ctx, provider, profile)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.generateTokenPair(user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *AuthService) oauthConfig(provider domain.AuthProvider) *oauth2.Config {
	switch provider {
	case domain.AuthProviderGoogle:
		return s.google
	case domain.AuthProviderGitHub:
		return s.github
	}
	return nil
}

// signInProvider finds the user linked to the provider account or creates one.
// A username clash is resolved by suffixing the provider name.
func (s *AuthService) signInProvider(ctx context.Context, provider domain.AuthProvider, profile oauthProfile) (*domain.User, error) {
	user, err := s.users.FindByProviderID(ctx, provider, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	prov, providerID := provider, profile.ID
	candidates := []string{profile.Username, profile.Username + "-" + string(provider)}
	for _, username := range candidates {
		user, err = s.users.Create(ctx, domain.User{
			Username:   username,
			Role:       domain.RoleObserver,
			Provider:   &prov,
			ProviderID: &providerID,
		})
		if err == nil {
			logging.FromContext(ctx).Info("user registered", "user_id", user.ID, "provider", provider)
			return user, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: no free username for %s account %s", domain.ErrConflict, provider, profile.ID)
}

type oauthProfile struct {
	ID       string
	Username string
}

type googleUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func fetchGoogleProfile(ctx context.Context, client *http.Client) (oauthProfile, error) {
	var info googleUserInfo
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &info); err != nil {
		return oauthProfile{}, err
	}
	username, _, _ := strings.Cut(info.Email, "@")
	if username == "" {
		username = info.Name
	}
	return oauthProfile{ID: info.ID, Username: username}, nil
}

type githubUserInfo struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

func fetchGitHubProfile(ctx context.Context, client *http.Client) (oauthProfile, error) {
	var info githubUserInfo
	if err := getJSON(ctx, client, "https://api.github.com/user", &info); err != nil {
		return oauthProfile{}, err
	}
	return oauthProfile{ID: fmt.Sprintf("%d", info.ID), Username: info.Login}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
