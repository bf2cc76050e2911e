package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"pvb-stock-bot/internal/cache"
	"pvb-stock-bot/internal/config"
)

const retrySleep = 2 * time.Second

// Client fetches stock and weather rows from the Supabase REST feed. A short
// per-type response cache keeps concurrent command handlers from hammering
// the backend inside one polling interval.
type Client struct {
	baseURL  string
	key      string
	game     string
	retries  int
	cacheTTL time.Duration

	httpClient *http.Client
	cache      cache.Cache
	logger     *slog.Logger
}

// NewClient builds a feed client from configuration.
func NewClient(cfg config.SupabaseConfig, c cache.Cache, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.URL,
		key:        cfg.Key,
		game:       cfg.Game,
		retries:    cfg.Retries,
		cacheTTL:   cfg.CacheTTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      c,
		logger:     logger.With("component", "stock-client"),
	}
}

// FetchStock retrieves seeds and gear concurrently and reduces them to a
// snapshot. Both legs failing means "no data this cycle": callers must skip
// delta detection rather than conclude everything sold out.
func (c *Client) FetchStock(ctx context.Context) (Snapshot, []Row, error) {
	var seeds, gear []Row
	var seedsErr, gearErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		seeds, seedsErr = c.fetchRows(gctx, "seeds")
		return nil
	})
	g.Go(func() error {
		gear, gearErr = c.fetchRows(gctx, "gear")
		return nil
	})
	_ = g.Wait()

	if seedsErr != nil && gearErr != nil {
		return nil, nil, fmt.Errorf("stock fetch failed: seeds: %v, gear: %w", seedsErr, gearErr)
	}
	if seedsErr != nil {
		c.logger.Warn("seeds fetch failed, using gear only", "error", seedsErr)
	}
	if gearErr != nil {
		c.logger.Warn("gear fetch failed, using seeds only", "error", gearErr)
	}

	rows := make([]Row, 0, len(seeds)+len(gear))
	rows = append(rows, seeds...)
	rows = append(rows, gear...)
	return BuildSnapshot(rows), rows, nil
}

// FetchWeather returns the newest active weather row, or nil when the
// weather is plain.
func (c *Client) FetchWeather(ctx context.Context) (*Row, error) {
	rows, err := c.fetchRows(ctx, "weather")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) fetchRows(ctx context.Context, typ string) ([]Row, error) {
	key := "stock:" + c.game + ":" + typ
	body, err := c.cache.GetOrSet(ctx, key, c.cacheTTL, func() ([]byte, error) {
		return c.getWithRetry(ctx, typ)
	})
	if err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse %s rows: %w", typ, err)
	}
	return rows, nil
}

func (c *Client) getWithRetry(ctx context.Context, typ string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		body, err := c.get(ctx, typ)
		if err == nil {
			return body, nil
		}
		lastErr = err
		c.logger.Warn("feed request failed", "type", typ, "attempt", attempt, "error", err)

		if attempt < c.retries {
			select {
			case <-time.After(retrySleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, typ string) ([]byte, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("game", "eq."+c.game)
	q.Set("type", "eq."+typ)
	q.Set("active", "eq.true")
	q.Set("order", "created_at.desc")

	endpoint := c.baseURL + "/rest/v1/game_stock?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}
	return body, nil
}
