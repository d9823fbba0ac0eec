package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AdielMag/MoneyMaker/internal/domain"
	"github.com/AdielMag/MoneyMaker/internal/ports"
)

var errMiss = errors.New("cache miss")

// QuoteCache es un read-through delante de un ports.PriceFeed.
// Cada cotización se guarda como hash en "quote:{marketID}" con campos
// "outcomes" (JSON), "active", "closed", "ts" (Unix nanos de FetchedAt) y, si la fuente
// lo informa, "updated" (Unix nanos de UpdatedAt), con TTL.
// Un fallo de Redis nunca llega al caller: se degrada al feed.
type QuoteCache struct {
	rdb  *redis.Client
	feed ports.PriceFeed
	ttl  time.Duration
}

// NewQuoteCache crea la caché. ttl <= 0 desactiva la escritura.
func NewQuoteCache(rdb *redis.Client, feed ports.PriceFeed, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: rdb, feed: feed, ttl: ttl}
}

func quoteKey(marketID string) string {
	return "quote:" + marketID
}

// FetchQuote implementa ports.PriceFeed.
func (c *QuoteCache) FetchQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	q, err := c.get(ctx, marketID)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, errMiss) {
		slog.Debug("quote cache unavailable, using feed", "market_id", marketID, "err", err)
	}

	q, err = c.feed.FetchQuote(ctx, marketID)
	if err != nil {
		return domain.Quote{}, err
	}
	if err := c.set(ctx, q); err != nil {
		slog.Debug("quote cache write failed", "market_id", marketID, "err", err)
	}
	return q, nil
}

func (c *QuoteCache) get(ctx context.Context, marketID string) (domain.Quote, error) {
	vals, err := c.rdb.HGetAll(ctx, quoteKey(marketID)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("cache.get %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, errMiss
	}

	q := domain.Quote{MarketID: marketID}
	if err := json.Unmarshal([]byte(vals["outcomes"]), &q.Outcomes); err != nil {
		return domain.Quote{}, fmt.Errorf("cache.get %s: parse outcomes: %w", marketID, err)
	}
	q.Active = vals["active"] == "1"
	q.Closed = vals["closed"] == "1"
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("cache.get %s: parse ts: %w", marketID, err)
	}
	q.FetchedAt = time.Unix(0, ts).UTC()
	if v, ok := vals["updated"]; ok {
		upd, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("cache.get %s: parse updated: %w", marketID, err)
		}
		q.UpdatedAt = time.Unix(0, upd).UTC()
	}
	return q, nil
}

func (c *QuoteCache) set(ctx context.Context, q domain.Quote) error {
	if c.ttl <= 0 {
		return nil
	}
	outcomes, err := json.Marshal(q.Outcomes)
	if err != nil {
		return fmt.Errorf("cache.set: marshal outcomes: %w", err)
	}
	fields := map[string]any{
		"outcomes": string(outcomes),
		"active":   boolField(q.Active),
		"closed":   boolField(q.Closed),
		"ts":       strconv.FormatInt(q.FetchedAt.UnixNano(), 10),
	}
	if !q.UpdatedAt.IsZero() {
		fields["updated"] = strconv.FormatInt(q.UpdatedAt.UnixNano(), 10)
	}
	key := quoteKey(q.MarketID)
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fields)
		p.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache.set %s: %w", q.MarketID, err)
	}
	return nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
