package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"roomframe/internal/models"
)

const (
	personCacheTTL     = 5 * time.Minute
	personCacheCleanup = 10 * time.Minute
)

// HTTPClient talks to the platform REST API. People lookups are cached
// because the dispatcher resolves the author of every inbound message.
type HTTPClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	personCache *cache.Cache
}

// NewHTTPClient creates a REST client for the given API base URL and token
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		personCache: cache.New(personCacheTTL, personCacheCleanup),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d", ErrPolicyDenied, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s %s: status %d", ErrTransport, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// listResponse is the platform's standard paged collection envelope
type listResponse[T any] struct {
	Items []T `json:"items"`
}

// GetMe returns the authenticated account
func (c *HTTPClient) GetMe(ctx context.Context) (*models.Person, error) {
	var p models.Person
	if err := c.do(ctx, http.MethodGet, "/people/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetRoom fetches room details by id
func (c *HTTPClient) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRoomTitle renames a room
func (c *HTTPClient) UpdateRoomTitle(ctx context.Context, roomID, title string) (*models.Room, error) {
	var r models.Room
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPut, "/rooms/"+url.PathEscape(roomID), body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListMemberships returns all memberships of a room
func (c *HTTPClient) ListMemberships(ctx context.Context, roomID string) ([]models.Membership, error) {
	var list listResponse[models.Membership]
	path := "/memberships?roomId=" + url.QueryEscape(roomID)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// ListOwnMemberships returns the authenticated account's memberships
func (c *HTTPClient) ListOwnMemberships(ctx context.Context, max int) ([]models.Membership, error) {
	path := "/memberships"
	if max > 0 {
		path += "?max=" + strconv.Itoa(max)
	}
	var list listResponse[models.Membership]
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// CreateMembership adds a person to a room
func (c *HTTPClient) CreateMembership(ctx context.Context, roomID, personEmail string, isModerator bool) (*models.Membership, error) {
	body := map[string]any{
		"roomId":      roomID,
		"personEmail": personEmail,
		"isModerator": isModerator,
	}
	var m models.Membership
	if err := c.do(ctx, http.MethodPost, "/memberships", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMembership updates a membership (moderator flag)
func (c *HTTPClient) UpdateMembership(ctx context.Context, m *models.Membership) (*models.Membership, error) {
	body := map[string]any{"isModerator": m.IsModerator}
	var out models.Membership
	if err := c.do(ctx, http.MethodPut, "/memberships/"+url.PathEscape(m.ID), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMembership removes a person from a room
func (c *HTTPClient) DeleteMembership(ctx context.Context, membershipID string) error {
	return c.do(ctx, http.MethodDelete, "/memberships/"+url.PathEscape(membershipID), nil, nil)
}

// GetMessage fetches the full message body for a webhook that omitted it
func (c *HTTPClient) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	var m models.Message
	if err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage sends a message to a room or person
func (c *HTTPClient) CreateMessage(ctx context.Context, msg *models.OutboundMessage) (*models.Message, error) {
	var m models.Message
	if err := c.do(ctx, http.MethodPost, "/messages", msg, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage deletes a message by id
func (c *HTTPClient) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
}

// GetPerson fetches a person by id, with caching
func (c *HTTPClient) GetPerson(ctx context.Context, personID string) (*models.Person, error) {
	if cached, found := c.personCache.Get(personID); found {
		return cached.(*models.Person), nil
	}
	var p models.Person
	if err := c.do(ctx, http.MethodGet, "/people/"+url.PathEscape(personID), nil, &p); err != nil {
		return nil, err
	}
	c.personCache.Set(personID, &p, cache.DefaultExpiration)
	return &p, nil
}

// GetPersonByEmail looks a person up by email, with caching
func (c *HTTPClient) GetPersonByEmail(ctx context.Context, email string) (*models.Person, error) {
	if cached, found := c.personCache.Get(email); found {
		return cached.(*models.Person), nil
	}
	var list listResponse[models.Person]
	path := "/people?email=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("%w: person %s", ErrNotFound, email)
	}
	p := list.Items[0]
	c.personCache.Set(email, &p, cache.DefaultExpiration)
	return &p, nil
}

// GetAttachmentAction fetches the full card-submit payload
func (c *HTTPClient) GetAttachmentAction(ctx context.Context, actionID string) (*models.AttachmentAction, error) {
	var a models.AttachmentAction
	if err := c.do(ctx, http.MethodGet, "/attachment/actions/"+url.PathEscape(actionID), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
