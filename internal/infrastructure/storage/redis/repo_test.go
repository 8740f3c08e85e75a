package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"mktmetrics/internal/domain"
)

func sample() *domain.MarketMetrics {
	m := domain.NewMarketMetrics("LINK", time.Date(2026, 3, 1, 12, 0, 0, 5000, time.UTC))
	m.MarkPrice = decimal.NewNullDecimal(decimal.RequireFromString("14.25"))
	m.SpreadPct = decimal.NewNullDecimal(decimal.RequireFromString("0.0701"))
	return m
}

func TestEncodeFlattensRecord(t *testing.T) {
	p := Encode(sample())

	assert.Equal(t, "LINK", p.Coin)
	assert.Equal(t, int64(1772366400000005), p.Timestamp)
	assert.Equal(t, "14.25", p.Fields["mark_price"])
	assert.Equal(t, "0.0701", p.Fields["spread_pct"])
	assert.Equal(t, "", p.Fields["oracle_price"])
	assert.Equal(t, "", p.Fields["total_latency_ms"])
	assert.Len(t, p.Fields, 25)

	b, err := msgpack.Marshal(&p)
	require.NoError(t, err)
	var back Payload
	require.NoError(t, msgpack.Unmarshal(b, &back))
	assert.Equal(t, p, back)
}

func TestNewDefaultsKeys(t *testing.T) {
	p := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "", 0, "", 0)
	defer p.Close()
	assert.Equal(t, "mktmetrics:latest", p.keyLatest)
	assert.Equal(t, "mktmetrics:metrics", p.stream)
}

func TestPublishAgainstRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prefix := "mktmetrics_test_" + time.Now().Format("150405.000000")
	p, err := Dial(ctx, addr, "", 0, prefix, time.Minute, "", 100)
	require.NoError(t, err)
	defer p.Close()
	defer p.rdb.Del(context.Background(), p.keyLatest, p.stream)

	require.NoError(t, p.Publish(ctx, sample()))

	got, err := p.Latest(ctx, "link")
	require.NoError(t, err)
	assert.Equal(t, "14.25", got.Fields["mark_price"])

	n, err := p.rdb.XLen(ctx, p.stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
