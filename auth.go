package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidCredentials is returned by Login when the server rejects the
// username/password pair.
var ErrInvalidCredentials = errors.New("messenger: invalid username or password")

// Credentials is sent to POST /api/login and POST /api/register.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by POST /api/login and POST /api/register.
type AuthResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Username     string `json:"username"`
	SessionToken string `json:"sessionToken"`
}

// ValidateResponse is returned by GET /api/validate.
type ValidateResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username"`
}

// Login exchanges a username and password for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.post(ctx, "/api/login", &Credentials{Username: username, Password: password}, &out); err != nil {
		if code, ok := HTTPStatus(err); ok && code == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, err
	}
	if err := checkAuthResponse(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns a session for it.
//
// The server enforces 3 to 20 character usernames and passwords of at
// least 6 characters; violations come back as http 400 errors carrying
// the server's message.
func (c *Client) Register(ctx context.Context, username, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.post(ctx, "/api/register", &Credentials{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	if err := checkAuthResponse(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate reports whether the client's session token is still accepted.
func (c *Client) Validate(ctx context.Context) (*ValidateResponse, error) {
	var out ValidateResponse
	if err := c.get(ctx, "/api/validate", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func checkAuthResponse(resp *AuthResponse) error {
	if !resp.Success {
		if resp.Message != "" {
			return fmt.Errorf("messenger: %s", resp.Message)
		}
		return errors.New("messenger: authentication did not succeed")
	}
	if resp.SessionToken == "" {
		return errors.New("messenger: server returned no session token")
	}
	return nil
}
