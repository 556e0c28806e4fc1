package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Singhary/chaty/models"
)

// API reads the store through the HTTP API. Views use it to re-sync after a
// reconnect.
type API struct {
	base  string
	token string
	http  *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (a *API) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &apiError{Status: resp.StatusCode, Message: body.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *API) Me(ctx context.Context) (models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	err := a.get(ctx, "/api/v1/users/me", &out)
	return out.User, err
}

func (a *API) Friends(ctx context.Context) ([]models.User, error) {
	var out struct {
		Friends []models.User `json:"friends"`
	}
	err := a.get(ctx, "/api/v1/friends/list", &out)
	return out.Friends, err
}

func (a *API) FriendRequests(ctx context.Context) ([]models.IncomingFriendRequest, error) {
	var out struct {
		Requests []models.IncomingFriendRequest `json:"requests"`
	}
	err := a.get(ctx, "/api/v1/friends/requests", &out)
	return out.Requests, err
}

func (a *API) Groups(ctx context.Context) ([]models.Group, error) {
	var out struct {
		Groups []models.Group `json:"groups"`
	}
	err := a.get(ctx, "/api/v1/groups/list", &out)
	return out.Groups, err
}

// ChatHistory returns the conversation newest first.
func (a *API) ChatHistory(ctx context.Context, chatKey string, limit int) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	err := a.get(ctx, fmt.Sprintf("/api/v1/chats/%s/messages?limit=%d", url.PathEscape(chatKey), limit), &out)
	return out.Messages, err
}

// GroupHistory returns the group log newest first.
func (a *API) GroupHistory(ctx context.Context, groupID string, limit int) ([]models.GroupMessage, error) {
	var out struct {
		Messages []models.GroupMessage `json:"messages"`
	}
	err := a.get(ctx, fmt.Sprintf("/api/v1/groups/%s/messages?limit=%d", url.PathEscape(groupID), limit), &out)
	return out.Messages, err
}
