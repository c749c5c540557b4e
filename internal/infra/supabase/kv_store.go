package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/burger-place-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// DefaultTable is the table holding substrate records.
const DefaultTable = "kv_items"

// kvRow maps the table columns.
type kvRow struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// KVStore is a substrate backed by a two-column PostgREST table
// (key text primary key, value text).
type KVStore struct {
	client *Client
	table  string
	guard  *resilience.Guard
	reads  singleflight.Group
}

// NewKVStore creates the substrate.
func NewKVStore(client *Client, table string, guard *resilience.Guard) *KVStore {
	if table == "" {
		table = DefaultTable
	}
	return &KVStore{client: client, table: table, guard: guard}
}

type getResult struct {
	value string
	found bool
}

// GetItem fetches the value for key. Concurrent reads of the same key share one request.
func (s *KVStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	v, err, _ := s.reads.Do(key, func() (any, error) {
		var res getResult
		err := s.guard.Do(ctx, func(ctx context.Context) error {
			path := fmt.Sprintf("%s?%s&select=key,value&limit=1", s.table, eq("key", key))
			body, err := s.client.doRequest(ctx, http.MethodGet, path, nil, "")
			if err != nil {
				return classify(err)
			}
			if body == nil {
				res = getResult{}
				return nil
			}
			var rows []kvRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return resilience.Permanent(fmt.Errorf("decode kv row: %w", err))
			}
			if len(rows) == 0 {
				res = getResult{}
				return nil
			}
			res = getResult{value: rows[0].Value, found: true}
			return nil
		})
		return res, err
	})
	if err != nil {
		return "", false, err
	}
	res := v.(getResult)
	return res.value, res.found, nil
}

// SetItem upserts the row for key.
func (s *KVStore) SetItem(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key), attribute.Int("kv.bytes", len(value)))

	row := kvRow{Key: key, Value: value, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.doRequest(ctx, http.MethodPost, s.table+"?on_conflict=key", []kvRow{row},
			"resolution=merge-duplicates,return=minimal")
		return classify(err)
	})
}

// RemoveItem deletes the row for key. Missing rows are not an error.
func (s *KVStore) RemoveItem(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RemoveItem")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.doRequest(ctx, http.MethodDelete, s.table+"?"+eq("key", key), nil, "return=minimal")
		return classify(err)
	})
}

// Ping issues a cheap read against the table.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.guard.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.doRequest(ctx, http.MethodGet, s.table+"?select=key&limit=1", nil, "")
		return classify(err)
	})
}
