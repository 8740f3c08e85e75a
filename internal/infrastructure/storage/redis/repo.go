package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"mktmetrics/internal/application/port"
	"mktmetrics/internal/domain"
	"mktmetrics/internal/infrastructure/storage"
)

// Publisher mirrors stored samples into Redis: the newest record per coin in
// a hash and every record in a capped stream.
type Publisher struct {
	rdb       *redis.Client
	ttl       time.Duration
	keyLatest string // prefix + ":latest"
	stream    string
	streamMax int64
}

// Payload is the msgpack body stored under <prefix>:latest. Absent values are
// empty strings.
type Payload struct {
	Coin      string            `msgpack:"coin"`
	Timestamp int64             `msgpack:"ts_us"`
	Fields    map[string]string `msgpack:"fields"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, stream string, streamMax int64) *Publisher {
	if strings.TrimSpace(prefix) == "" {
		prefix = "mktmetrics"
	}
	if strings.TrimSpace(stream) == "" {
		stream = prefix + ":metrics"
	}
	return &Publisher{
		rdb:       rdb,
		ttl:       ttl,
		keyLatest: prefix + ":latest",
		stream:    stream,
		streamMax: streamMax,
	}
}

// Dial connects and pings before returning a Publisher.
func Dial(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration, stream string, streamMax int64) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, prefix, ttl, stream, streamMax), nil
}

func (p *Publisher) Publish(ctx context.Context, m *domain.MarketMetrics) error {
	payload := Encode(m)
	b, err := msgpack.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Coin, err)
	}

	values := make(map[string]any, len(payload.Fields)+2)
	values["coin"] = payload.Coin
	values["ts_us"] = payload.Timestamp
	for k, v := range payload.Fields {
		values[k] = v
	}

	pipe := p.rdb.Pipeline()
	pipe.HSet(ctx, p.keyLatest, strings.ToUpper(m.Coin), b)
	if p.ttl > 0 {
		pipe.Expire(ctx, p.keyLatest, p.ttl)
	}
	args := &redis.XAddArgs{Stream: p.stream, Values: values}
	if p.streamMax > 0 {
		args.MaxLen = p.streamMax
		args.Approx = true
	}
	pipe.XAdd(ctx, args)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", m.Coin, err)
	}
	return nil
}

// Latest reads back the newest payload published for coin.
func (p *Publisher) Latest(ctx context.Context, coin string) (Payload, error) {
	var out Payload
	b, err := p.rdb.HGet(ctx, p.keyLatest, strings.ToUpper(coin)).Bytes()
	if err != nil {
		return out, err
	}
	err = msgpack.Unmarshal(b, &out)
	return out, err
}

func (p *Publisher) Close() error { return p.rdb.Close() }

// Encode flattens m into a Payload.
func Encode(m *domain.MarketMetrics) Payload {
	fields := make(map[string]string, len(storage.DecimalColumns)+len(storage.IntColumns))
	for _, c := range storage.DecimalColumns {
		if d := *c.Field(m); d.Valid {
			fields[c.Name] = d.Decimal.String()
		} else {
			fields[c.Name] = ""
		}
	}
	for _, c := range storage.IntColumns {
		if v := *c.Field(m); v != nil {
			fields[c.Name] = fmt.Sprintf("%d", *v)
		} else {
			fields[c.Name] = ""
		}
	}
	return Payload{Coin: m.Coin, Timestamp: m.Timestamp.UTC().UnixMicro(), Fields: fields}
}

var _ port.MetricsSink = (*Publisher)(nil)
