package apiclient

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-miniapp-session/internal/utils"
	"github.com/jrsteele09/go-miniapp-session/token"
)

const (
	EndpointLogin    = "/auth/login"
	EndpointRegister = "/auth/register"
	EndpointTelegram = "/auth/telegram"
	EndpointVK       = "/auth/vk"
	EndpointRefresh  = "/auth/refresh"
	EndpointMe       = "/auth/me"
)

// User is the backend's view of the signed in user. The platform ids bind a token to a
// Telegram or VK account.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
	VKID       *int64 `json:"vk_id,omitempty"`
}

// AuthResponse is returned by every login style endpoint. Refresh omits the user.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	User         *User  `json:"user,omitempty"`
}

func (r AuthResponse) Pair() token.Pair {
	return token.Pair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type TelegramLoginRequest struct {
	InitData     string  `json:"init_data"`
	CurrentToken *string `json:"current_token,omitempty"`
}

type VKLoginRequest struct {
	LaunchParams string  `json:"launch_params"`
	CurrentToken *string `json:"current_token,omitempty"`
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	return Request[AuthResponse](ctx, c, http.MethodPost, EndpointLogin, LoginRequest{Email: email, Password: password}, WithoutAuth())
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	return Request[AuthResponse](ctx, c, http.MethodPost, EndpointRegister, req, WithoutAuth())
}

// TelegramLogin exchanges init data. A non-empty currentToken asks the backend to link
// the Telegram account to that token's user.
func (c *Client) TelegramLogin(ctx context.Context, initData, currentToken string) (AuthResponse, error) {
	return Request[AuthResponse](ctx, c, http.MethodPost, EndpointTelegram, TelegramLoginRequest{
		InitData:     initData,
		CurrentToken: optional(currentToken),
	}, WithoutAuth())
}

func (c *Client) VKLogin(ctx context.Context, launchParams, currentToken, firstName, lastName string) (AuthResponse, error) {
	return Request[AuthResponse](ctx, c, http.MethodPost, EndpointVK, VKLoginRequest{
		LaunchParams: launchParams,
		CurrentToken: optional(currentToken),
		FirstName:    optional(firstName),
		LastName:     optional(lastName),
	}, WithoutAuth())
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (AuthResponse, error) {
	return Request[AuthResponse](ctx, c, http.MethodPost, EndpointRefresh, RefreshRequest{RefreshToken: refreshToken}, WithoutAuth())
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	return Request[*User](ctx, c, http.MethodGet, EndpointMe, nil, WithNoCache())
}

// RefreshTokens makes the client the token store's Refresher.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (token.Pair, error) {
	resp, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return token.Pair{}, err
	}
	return resp.Pair(), nil
}

var _ token.Refresher = (*Client)(nil)

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return utils.Ptr(s)
}
