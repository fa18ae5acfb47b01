package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-identity-client/apierrors"
	"github.com/jrsteele09/go-identity-client/auth"
	"github.com/jrsteele09/go-identity-client/token"
	"github.com/jrsteele09/go-identity-client/users"
)

const (
	PathRegister   = "/identity/register"
	PathManageInfo = "/identity/manage/info"
)

// validationProblem is the ValidationProblemDetails body of a 400.
type validationProblem struct {
	Title  string              `json:"title"`
	Errors map[string][]string `json:"errors"`
}

// Me returns the profile of the signed-in user.
func (c *Client) Me(ctx context.Context) (*users.Profile, error) {
	var p users.Profile
	if err := c.GetJSON(ctx, auth.PathMe, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateMe replaces the editable profile fields of the signed-in user.
func (c *Client) UpdateMe(ctx context.Context, update users.ProfileUpdate) error {
	return c.PutJSON(ctx, auth.PathMe, update, nil)
}

// SetRoles replaces the roles of a user. Requires an administrator session.
func (c *Client) SetRoles(ctx context.Context, userID string, roles []string) error {
	if roles == nil {
		roles = []string{}
	}
	return c.PutJSON(ctx, ItemPath("user", userID)+"/roles", roles, nil)
}

// ChangePassword changes the signed-in user's password. Rejections the server explains
// (a 400 with field errors) are returned as the map, with a nil error.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) (map[string][]string, error) {
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return nil, fmt.Errorf("[Client.ChangePassword] %w", err)
	}
	body := struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}{oldPassword, newPassword}

	err := c.PostJSON(ctx, PathManageInfo, body, nil)
	if problems := validationErrors(err); len(problems) > 0 {
		return problems, nil
	}
	return nil, err
}

// Register creates an account and fills in its profile. It signs in once with the new
// credentials to do so but leaves any managed session untouched. Field errors reported by
// the server are returned as the map, with a nil error.
func (c *Client) Register(ctx context.Context, reg users.Registration) (map[string][]string, error) {
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("[Client.Register] %w", err)
	}
	cred := auth.Credential{Email: strings.TrimSpace(reg.Email), Password: reg.Password}

	req, err := c.transport.NewJSONRequest(ctx, http.MethodPost, PathRegister, cred)
	if err != nil {
		return nil, err
	}
	if _, err := c.roundTrip(req); err != nil {
		if problems := validationErrors(err); len(problems) > 0 {
			return problems, nil
		}
		return nil, fmt.Errorf("[Client.Register] %w", err)
	}

	req, err = c.transport.NewJSONRequest(ctx, http.MethodPost, auth.PathLogin, cred)
	if err != nil {
		return nil, err
	}
	body, err := c.roundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("[Client.Register] signing in: %w", err)
	}
	set, err := token.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("[Client.Register] %w: %w", apierrors.ErrAuthenticationFailed, err)
	}

	req, err = c.transport.NewJSONRequest(ctx, http.MethodPut, auth.PathMe, reg.ProfileUpdate())
	if err != nil {
		return nil, err
	}
	set.OAuth2Token(time.Time{}).SetAuthHeader(req)
	if _, err := c.roundTrip(req); err != nil {
		return nil, fmt.Errorf("[Client.Register] saving profile: %w", err)
	}

	c.logger.Info().Str("email", cred.Email).Msg("account registered")
	return nil, nil
}

// validationErrors extracts the field errors of a 400 ValidationProblemDetails response.
func validationErrors(err error) map[string][]string {
	re, ok := apierrors.AsResponseError(err)
	if !ok || re.StatusCode != http.StatusBadRequest {
		return nil
	}
	var problem validationProblem
	if json.Unmarshal([]byte(re.Body), &problem) != nil {
		return nil
	}
	return problem.Errors
}
