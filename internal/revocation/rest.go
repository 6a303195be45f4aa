package revocation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const restRequestTimeout = 5 * time.Second

// RESTStore talks to an Upstash-compatible key-value store over plain HTTPS,
// one request per operation. No persistent connection is held, which suits
// ephemeral compute where the process may be frozen between requests.
type RESTStore struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewRESTStore(baseURL, authToken string) (*RESTStore, error) {
	if baseURL == "" {
		return nil, errors.New("revocation: rest store url is required")
	}
	return &RESTStore{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: restRequestTimeout,
		},
	}, nil
}

func (s *RESTStore) Denylist(ctx context.Context, token string, ttl time.Duration) error {
	_, err := s.do(ctx, "SETEX", denyKey(token), strconv.FormatInt(ttlSeconds(ttl), 10), "1")
	return err
}

func (s *RESTStore) IsDenied(ctx context.Context, token string) (bool, error) {
	return s.exists(ctx, denyKey(token))
}

func (s *RESTStore) CreateSession(ctx context.Context, id string, payload map[string]any, ttl time.Duration) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.do(ctx, "SETEX", sessionKey(id), strconv.FormatInt(ttlSeconds(ttl), 10), string(value))
	return err
}

func (s *RESTStore) TouchSession(ctx context.Context, id string, ttl time.Duration) error {
	_, err := s.do(ctx, "EXPIRE", sessionKey(id), strconv.FormatInt(ttlSeconds(ttl), 10))
	return err
}

func (s *RESTStore) SessionExists(ctx context.Context, id string) (bool, error) {
	return s.exists(ctx, sessionKey(id))
}

func (s *RESTStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.do(ctx, "DEL", sessionKey(id))
	return err
}

func (s *RESTStore) exists(ctx context.Context, key string) (bool, error) {
	result, err := s.do(ctx, "EXISTS", key)
	if err != nil {
		return false, err
	}
	var count int64
	if err := json.Unmarshal(result, &count); err != nil {
		return false, fmt.Errorf("revocation: unexpected EXISTS result %q", string(result))
	}
	return count > 0, nil
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (s *RESTStore) do(ctx context.Context, command ...string) (json.RawMessage, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("revocation: store unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("revocation: store returned status %d", resp.StatusCode)
	}

	var parsed restResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("revocation: malformed store response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("revocation: store error: %s", parsed.Error)
	}
	return parsed.Result, nil
}
