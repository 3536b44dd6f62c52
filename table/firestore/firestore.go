// Package firestore is a table.Table over one Firestore collection. Each row is
// a document carrying store_id, key, data and last_fetched fields.
//
// Store-wide operations query and rewrite every matching document, so this
// backend suits low-volume stores; use the redis table for hot paths.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/unkn0wn-root/flowstore/table"
)

const (
	fieldStoreID     = "store_id"
	fieldLastFetched = "last_fetched"
)

type Config struct {
	Client     *fs.Client
	Collection string
	// CloseClient closes Client on Close. Leave false when the client is shared.
	CloseClient bool
}

type Table struct {
	client      *fs.Client
	col         *fs.CollectionRef
	closeClient bool
}

var _ table.Table = (*Table)(nil)

type doc struct {
	StoreID     string `firestore:"store_id"`
	Key         string `firestore:"key"`
	Data        []byte `firestore:"data"`
	LastFetched int64  `firestore:"last_fetched"`
}

func New(cfg Config) (*Table, error) {
	if cfg.Client == nil {
		return nil, errors.New("firestore: nil client")
	}
	if cfg.Collection == "" {
		return nil, errors.New("firestore: collection required")
	}
	return &Table{
		client:      cfg.Client,
		col:         cfg.Client.Collection(cfg.Collection),
		closeClient: cfg.CloseClient,
	}, nil
}

// docID is stable and free of '/' regardless of the store id or key bytes.
func docID(storeID, key string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s:", len(storeID), storeID)
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

func (t *Table) Get(ctx context.Context, storeID, key string) (table.Row, bool, error) {
	snap, err := t.col.Doc(docID(storeID, key)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return table.Row{}, false, nil
	}
	if err != nil {
		return table.Row{}, false, fmt.Errorf("firestore get %s/%s: %w", storeID, key, err)
	}
	var d doc
	if err := snap.DataTo(&d); err != nil {
		return table.Row{}, false, fmt.Errorf("%w: %s/%s: %v", table.ErrCorruptRow, storeID, key, err)
	}
	return table.Row{Key: d.Key, Value: d.Data, LastFetched: d.LastFetched}, true, nil
}

func (t *Table) Put(ctx context.Context, storeID string, row table.Row) error {
	d := doc{StoreID: storeID, Key: row.Key, Data: row.Value, LastFetched: row.LastFetched}
	if d.Data == nil {
		d.Data = []byte{}
	}
	if _, err := t.col.Doc(docID(storeID, row.Key)).Set(ctx, d); err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", storeID, row.Key, err)
	}
	return nil
}

func (t *Table) MarkStale(ctx context.Context, storeID, key string) error {
	_, err := t.col.Doc(docID(storeID, key)).Update(ctx, []fs.Update{{Path: fieldLastFetched, Value: table.StaleMillis}})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (t *Table) MarkStoreStale(ctx context.Context, storeID string) error {
	return t.each(ctx, t.col.Where(fieldStoreID, "==", storeID), func(bw *fs.BulkWriter, ref *fs.DocumentRef) (*fs.BulkWriterJob, error) {
		return bw.Update(ref, []fs.Update{{Path: fieldLastFetched, Value: table.StaleMillis}})
	})
}

func (t *Table) DeleteAll(ctx context.Context) error {
	return t.each(ctx, t.col.Query, func(bw *fs.BulkWriter, ref *fs.DocumentRef) (*fs.BulkWriterJob, error) {
		return bw.Delete(ref)
	})
}

func (t *Table) each(ctx context.Context, q fs.Query, op func(*fs.BulkWriter, *fs.DocumentRef) (*fs.BulkWriterJob, error)) error {
	bw := t.client.BulkWriter(ctx)
	var jobs []*fs.BulkWriterJob

	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return err
		}
		job, err := op(bw, snap.Ref)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, j := range jobs {
		if _, err := j.Results(); err != nil && status.Code(err) != codes.NotFound {
			return err
		}
	}
	return nil
}

func (t *Table) Close(context.Context) error {
	if t.closeClient {
		return t.client.Close()
	}
	return nil
}
