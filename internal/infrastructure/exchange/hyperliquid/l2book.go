package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mktmetrics/internal/domain"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsDialTimeout  = 10 * time.Second
	wsMinBackoff   = 500 * time.Millisecond
	wsMaxBackoff   = 10 * time.Second
)

// BookSink receives full-book snapshots.
type BookSink interface {
	Update(s domain.BookSnapshot)
}

// BookFeed keeps local order books current from the l2Book websocket channel.
// Every l2Book message carries the full visible book, so each one replaces the
// coin's snapshot.
type BookFeed struct {
	wsURL string
	coins []string
	sink  BookSink
}

func NewBookFeed(wsURL string, coins []string, sink BookSink) *BookFeed {
	if strings.TrimSpace(wsURL) == "" {
		wsURL = DefaultWsURL
	}
	return &BookFeed{
		wsURL: strings.TrimSpace(wsURL),
		coins: append([]string(nil), coins...),
		sink:  sink,
	}
}

func (f *BookFeed) Name() string { return "hyperliquid-l2book" }

type wsSubscribe struct {
	Method       string         `json:"method"`
	Subscription wsSubscription `json:"subscription"`
}

type wsSubscription struct {
	Type string `json:"type"`
	Coin string `json:"coin"`
}

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsBook struct {
	Coin   string      `json:"coin"`
	Time   int64       `json:"time"`
	Levels [][]wsLevel `json:"levels"`
}

type wsLevel struct {
	Px Num `json:"px"`
	Sz Num `json:"sz"`
	N  int `json:"n"`
}

// Run connects, subscribes and pumps snapshots into the sink until ctx is
// done, reconnecting with exponential backoff.
func (f *BookFeed) Run(ctx context.Context) {
	backoff := wsMinBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		log.Info().Str("feed", f.Name()).Str("url", f.wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, wsDialTimeout)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, f.wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, wsMaxBackoff)
			continue
		}

		if err := f.subscribe(conn); err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws subscribe failed")
			_ = conn.Close()
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, wsMaxBackoff)
			continue
		}

		backoff = wsMinBackoff
		log.Info().Str("feed", f.Name()).Strs("coins", f.coins).Msg("ws connected")

		err = readLoop(ctx, conn, f.handle)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, wsMaxBackoff)
	}
}

func (f *BookFeed) subscribe(conn *websocket.Conn) error {
	for _, coin := range f.coins {
		msg := wsSubscribe{
			Method:       "subscribe",
			Subscription: wsSubscription{Type: "l2Book", Coin: coin},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *BookFeed) handle(b []byte) {
	snap, ok, err := parseBookMessage(b)
	if err != nil {
		log.Error().Str("feed", f.Name()).Err(err).Msg("json unmarshal failed")
		return
	}
	if ok {
		f.sink.Update(snap)
	}
}

// parseBookMessage decodes one websocket frame. Frames from other channels
// (subscription acks, pongs) yield ok=false. Levels whose price or size
// cannot be parsed are dropped.
func parseBookMessage(b []byte) (domain.BookSnapshot, bool, error) {
	var env wsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return domain.BookSnapshot{}, false, err
	}
	if env.Channel != "l2Book" {
		return domain.BookSnapshot{}, false, nil
	}

	var book wsBook
	if err := json.Unmarshal(env.Data, &book); err != nil {
		return domain.BookSnapshot{}, false, err
	}
	if book.Coin == "" {
		return domain.BookSnapshot{}, false, errors.New("l2Book message without coin")
	}

	snap := domain.BookSnapshot{Coin: book.Coin, Time: time.UnixMilli(book.Time)}
	if len(book.Levels) > 0 {
		snap.Bids = toLevels(book.Levels[0])
	}
	if len(book.Levels) > 1 {
		snap.Asks = toLevels(book.Levels[1])
	}
	return snap, true, nil
}

func toLevels(in []wsLevel) []domain.Level {
	out := make([]domain.Level, 0, len(in))
	for _, l := range in {
		px, ok := l.Px.Decimal()
		if !ok {
			continue
		}
		sz, ok := l.Sz.Decimal()
		if !ok {
			continue
		}
		out = append(out, domain.Level{Price: px, Size: sz})
	}
	return out
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			// application-level ping; the server answers on the "pong" channel
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"ping"}`)); err != nil {
				return err
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
