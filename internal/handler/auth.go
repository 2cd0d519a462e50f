package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthUsecase is the authentication surface consumed by AuthHandler.
type AuthUsecase interface {
	Register(ctx context.Context, username, password string, role domain.Role) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*domain.User, *service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	OAuthURL(provider domain.AuthProvider, state string) (string, error)
	OAuthCallback(ctx context.Context, provider domain.AuthProvider, code string) (*domain.User, *service.TokenPair, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth         AuthUsecase
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler. secureCookie marks the OAuth
// state cookie HTTPS-only.
func NewAuthHandler(auth AuthUsecase, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookie: secureCookie}
}

type registerRequest struct {
	Username string      `json:"username" validate:"required,min=3,max=100"`
	Password string      `json:"password" validate:"required,max=72"`
	Role     domain.Role `json:"role"`
}

// Register creates a password account.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	user, err := h.auth.Register(c.Request().Context(), req.Username, req.Password, req.Role)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	user, tokens, err := h.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{
		"user":   user,
		"tokens": tokens,
	})
}

// Refresh generates a new token pair from a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	if err := bindBody(c, &req); err != nil {
		return err
	}

	tokens, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, tokens)
}

// Me returns the currently authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	identity, ok := CurrentUser(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	user, err := h.auth.GetUser(c.Request().Context(), identity.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, user)
}

// OAuthRedirect redirects the user to the provider's consent page.
func (h *AuthHandler) OAuthRedirect(provider domain.AuthProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		state, err := generateState()
		if err != nil {
			return err
		}
		url, err := h.auth.OAuthURL(provider, state)
		if err != nil {
			return err
		}
		c.SetCookie(&http.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   600,
		})
		return c.Redirect(http.StatusTemporaryRedirect, url)
	}
}

// OAuthCallback completes the provider sign-in.
func (h *AuthHandler) OAuthCallback(provider domain.AuthProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := validateOAuthState(c); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}

		code := c.QueryParam("code")
		if code == "" {
			return domain.NewValidationError("code", "is required")
		}

		user, tokens, err := h.auth.OAuthCallback(c.Request().Context(), provider, code)
		if err != nil {
			return err
		}

		c.SetCookie(&http.Cookie{Name: oauthStateCookie, Path: "/", MaxAge: -1})
		return JSON(c, http.StatusOK, map[string]any{
			"user":   user,
			"tokens": tokens,
		})
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func validateOAuthState(c echo.Context) error {
	cookie, err := c.Cookie(oauthStateCookie)
	if err != nil {
		return fmt.Errorf("missing oauth_state cookie")
	}

	queryState := c.QueryParam("state")
	if queryState == "" || queryState != cookie.Value {
		return fmt.Errorf("state mismatch")
	}

	return nil
}
