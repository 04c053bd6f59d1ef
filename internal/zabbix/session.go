package zabbix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"skynet-agent/internal/model"
)

type Credentials struct {
	User     string
	Password string
}

// Session is an authenticated handle on the query API. The token has no
// tracked expiry; a new Session is the only way to renew it.
type Session struct {
	client *Client
	token  string
	logger *slog.Logger
}

// Login acquires an auth token. A backend-reported error is an *AuthError;
// any other failure is returned wrapped so the caller may retry.
func Login(ctx context.Context, client *Client, creds Credentials, logger *slog.Logger) (*Session, error) {
	token, err := acquire(ctx, client, creds)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			logger.Error("incorrect user or password, please check it again", "user", creds.User)
		}
		return nil, err
	}
	return &Session{client: client, token: token, logger: logger}, nil
}

func acquire(ctx context.Context, client *Client, creds Credentials) (string, error) {
	params := map[string]string{"user": creds.User, "password": creds.Password}
	var token string
	err := client.Call(ctx, "user.login", params, "", &token)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", &AuthError{User: creds.User, Err: apiErr}
		}
		return "", fmt.Errorf("login: %w", err)
	}
	if token == "" {
		return "", &AuthError{User: creds.User, Err: errors.New("empty auth token")}
	}
	return token, nil
}

func (s *Session) Token() string {
	return s.token
}

// Ping re-runs the login call to check that the backend accepts the
// credentials.
func Ping(ctx context.Context, client *Client, creds Credentials) error {
	_, err := acquire(ctx, client, creds)
	return err
}

// HostGroupIDs resolves group names to ids.
func (s *Session) HostGroupIDs(ctx context.Context, names []string) ([]string, error) {
	params := map[string]any{
		"output": "extend",
		"filter": map[string]any{"name": names},
	}
	var groups []model.HostGroup
	if err := s.client.Call(ctx, "hostgroup.get", params, s.token, &groups); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.GroupID)
	}
	return ids, nil
}

// HostFilter narrows host.get. Empty fields are omitted from the request.
type HostFilter struct {
	GroupIDs []string
	HostIDs  []string
}

func (s *Session) Hosts(ctx context.Context, filter HostFilter) ([]model.HostRecord, error) {
	params := map[string]any{"output": "extend"}
	if filter.GroupIDs != nil {
		params["groupids"] = filter.GroupIDs
	}
	if filter.HostIDs != nil {
		params["hostids"] = filter.HostIDs
	}
	var hosts []model.HostRecord
	if err := s.client.Call(ctx, "host.get", params, s.token, &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

// Items returns the items in the given groups whose key matches searchKey.
func (s *Session) Items(ctx context.Context, groupIDs []string, searchKey string) ([]model.Item, error) {
	params := map[string]any{
		"output":   "extend",
		"groupids": groupIDs,
	}
	if searchKey != "" {
		params["search"] = map[string]string{"key_": searchKey}
	}
	var items []model.Item
	if err := s.client.Call(ctx, "item.get", params, s.token, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// LatestHistory returns the most recent history point of one item.
func (s *Session) LatestHistory(ctx context.Context, history model.HistoryType, itemID string) (model.HistoryPoint, error) {
	params := map[string]any{
		"output":    "extend",
		"history":   int(history),
		"itemids":   itemID,
		"sortfield": "clock",
		"sortorder": "DESC",
		"limit":     1,
	}
	var points []model.HistoryPoint
	if err := s.client.Call(ctx, "history.get", params, s.token, &points); err != nil {
		return model.HistoryPoint{}, err
	}
	if len(points) == 0 {
		return model.HistoryPoint{}, fmt.Errorf("history.get: no history for item %s", itemID)
	}
	return points[0], nil
}
