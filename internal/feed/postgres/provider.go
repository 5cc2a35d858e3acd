// Package postgres implements the change-feed provider over Postgres. Row
// changes arrive through LISTEN/NOTIFY, the payload being a trigger-built
// JSON object {action, new, old}; the full catalog is read with a plain
// query at startup and on resync.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidegate/worldsync/internal/feed"
	"github.com/tidegate/worldsync/internal/npc"
)

const DefaultChannel = "npc_changes"

type Provider struct {
	pool    *pgxpool.Pool
	channel string
}

func New(ctx context.Context, dsn, channel string) (*Provider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &Provider{pool: pool, channel: channel}, nil
}

func (p *Provider) Close() {
	p.pool.Close()
}

// Subscribe takes a dedicated connection out of the pool, LISTENs on the
// notify channel and dispatches notifications inline on one goroutine, which
// preserves the order the database emitted them.
func (p *Provider) Subscribe(ctx context.Context, onChange func(feed.Change), onStatus func(feed.Status)) (feed.Subscription, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring listen connection: %w", err)
	}
	listenCtx, cancel := context.WithCancel(ctx)
	if _, err := conn.Exec(listenCtx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		cancel()
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", p.channel, err)
	}

	sub := &subscription{cancel: cancel}
	go func() {
		defer conn.Release()
		onStatus(feed.StatusConnected)
		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() != nil {
					return
				}
				log.Printf("[feed] wait for notification: %v", err)
				onStatus(feed.StatusError)
				return
			}
			var c feed.Change
			if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
				log.Printf("[feed] bad notify payload: %v", err)
				continue
			}
			onChange(c)
		}
	}()
	return sub, nil
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// FetchEnabled returns every enabled catalog row as a raw record.
func (p *Provider) FetchEnabled(ctx context.Context) ([]npc.RawRecord, error) {
	query := `SELECT row_to_json(n) FROM npcs n WHERE is_enabled = TRUE`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching enabled entities: %w", err)
	}
	defer rows.Close()

	var recs []npc.RawRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}
		var rec npc.RawRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Printf("[feed] skipping malformed row: %v", err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading entity rows: %w", err)
	}
	return recs, nil
}
