package messenger

import "context"

// Users lists every registered user with presence information.
//
// GET /api/users requires a session.
func (c *Client) Users(ctx context.Context) ([]UserInfo, error) {
	var out []UserInfo
	if err := c.get(ctx, "/api/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}
