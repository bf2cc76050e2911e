package store

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
)

// pageSize is the Supabase Range window used when walking large tables.
const pageSize = 1000

// SupabaseStore talks to the shared user_autostocks and bot_users tables
// through the Supabase REST API with bearer-token auth.
type SupabaseStore struct {
	baseURL    string
	key        string
	httpClient *http.Client
}

// NewSupabaseStore builds a store client for the given project URL and key.
func NewSupabaseStore(baseURL, key string, timeout time.Duration) *SupabaseStore {
	return &SupabaseStore{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type autostockRow struct {
	UserID   int64  `json:"user_id"`
	ItemName string `json:"item_name"`
}

type userRow struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastSeen  string `json:"last_seen"`
}

// ListItems returns the items a user is subscribed to.
func (s *SupabaseStore) ListItems(ctx context.Context, userID int64) ([]string, error) {
	q := url.Values{}
	q.Set("select", "item_name")
	q.Set("user_id", "eq."+strconv.FormatInt(userID, 10))

	var items []string
	err := s.paged(ctx, "user_autostocks", q, func(body []byte) (int, error) {
		var rows []autostockRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return 0, err
		}
		for _, r := range rows {
			items = append(items, r.ItemName)
		}
		return len(rows), nil
	})
	return items, err
}

// ListSubscribers returns every user subscribed to the item, walking the
// table in pages of 1000 rows.
func (s *SupabaseStore) ListSubscribers(ctx context.Context, item string) ([]int64, error) {
	q := url.Values{}
	q.Set("select", "user_id")
	q.Set("item_name", "eq."+item)

	var ids []int64
	err := s.paged(ctx, "user_autostocks", q, func(body []byte) (int, error) {
		var rows []autostockRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return 0, err
		}
		for _, r := range rows {
			ids = append(ids, r.UserID)
		}
		return len(rows), nil
	})
	return ids, err
}

// Add subscribes a user to an item; duplicate rows merge away server-side.
func (s *SupabaseStore) Add(ctx context.Context, userID int64, item string) error {
	return s.post(ctx, "user_autostocks", []autostockRow{{UserID: userID, ItemName: item}})
}

// Remove unsubscribes a user from an item.
func (s *SupabaseStore) Remove(ctx context.Context, userID int64, item string) error {
	q := url.Values{}
	q.Set("user_id", "eq."+strconv.FormatInt(userID, 10))
	q.Set("item_name", "eq."+item)
	return s.delete(ctx, "user_autostocks", q)
}

// PurgeUser drops the user and all their subscriptions.
func (s *SupabaseStore) PurgeUser(ctx context.Context, userID int64) error {
	q := url.Values{}
	q.Set("user_id", "eq."+strconv.FormatInt(userID, 10))
	if err := s.delete(ctx, "user_autostocks", q); err != nil {
		return err
	}
	return s.delete(ctx, "bot_users", q)
}

// UpsertUser records a user sighting.
func (s *SupabaseStore) UpsertUser(ctx context.Context, u User) error {
	lastSeen := u.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}
	return s.post(ctx, "bot_users", []userRow{{
		UserID:    u.UserID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastSeen:  lastSeen.Format(time.RFC3339),
	}})
}

// ListUserIDs returns every known user id.
func (s *SupabaseStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	q := url.Values{}
	q.Set("select", "user_id")

	var ids []int64
	err := s.paged(ctx, "bot_users", q, func(body []byte) (int, error) {
		var rows []userRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return 0, err
		}
		for _, r := range rows {
			ids = append(ids, r.UserID)
		}
		return len(rows), nil
	})
	return ids, err
}

// Counts returns the number of known users and total subscriptions, using
// exact-count HEAD requests so nothing is transferred.
func (s *SupabaseStore) Counts(ctx context.Context) (users, subscriptions int, err error) {
	users, err = s.count(ctx, "bot_users")
	if err != nil {
		return 0, 0, err
	}
	subscriptions, err = s.count(ctx, "user_autostocks")
	if err != nil {
		return 0, 0, err
	}
	return users, subscriptions, nil
}

// Close is a no-op; the store holds no persistent connection.
func (s *SupabaseStore) Close() error { return nil }

// paged walks a filtered table with Range headers until a short page.
func (s *SupabaseStore) paged(ctx context.Context, table string, q url.Values, consume func([]byte) (int, error)) error {
	for offset := 0; ; offset += pageSize {
		req, err := s.request(ctx, http.MethodGet, table, q, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Range", fmt.Sprintf("%d-%d", offset, offset+pageSize-1))

		body, _, err := s.do(req)
		if err != nil {
			return err
		}

		n, err := consume(body)
		if err != nil {
			return fmt.Errorf("parse %s page: %w", table, err)
		}
		if n < pageSize {
			return nil
		}
	}
}

func (s *SupabaseStore) post(ctx context.Context, table string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := s.request(ctx, http.MethodPost, table, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	_, _, err = s.do(req)
	return err
}

func (s *SupabaseStore) delete(ctx context.Context, table string, q url.Values) error {
	req, err := s.request(ctx, http.MethodDelete, table, q, nil)
	if err != nil {
		return err
	}
	_, _, err = s.do(req)
	return err
}

func (s *SupabaseStore) count(ctx context.Context, table string) (int, error) {
	q := url.Values{}
	q.Set("select", "user_id")

	req, err := s.request(ctx, http.MethodHead, table, q, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "count=exact")
	req.Header.Set("Range", "0-0")

	_, header, err := s.do(req)
	if err != nil {
		return 0, err
	}
	return parseContentRangeTotal(header.Get("Content-Range"))
}

// parseContentRangeTotal extracts the total from a "0-0/42" style header.
func parseContentRangeTotal(v string) (int, error) {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == '/' {
			return strconv.Atoi(v[i+1:])
		}
	}
	return 0, fmt.Errorf("unexpected Content-Range %q", v)
}

func (s *SupabaseStore) request(ctx context.Context, method, table string, q url.Values, body io.Reader) (*http.Request, error) {
	endpoint := s.baseURL + "/rest/v1/" + table
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	return req, nil
}

func (s *SupabaseStore) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	return body, resp.Header, nil
}
