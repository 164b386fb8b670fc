package database

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

// ExportAll writes every collection as one JSON object keyed by collection
// name. Collections are read concurrently.
func (s *Store) ExportAll(ctx context.Context, w io.Writer) (int, error) {
	names, err := s.ListCollections(ctx)
	if err != nil {
		return 0, err
	}

	var mu sync.Mutex
	full := make(map[string][]map[string]any, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range names {
		g.Go(func() error {
			cursor, err := s.db.Collection(name).Find(gctx, bson.D{})
			if err != nil {
				return fmt.Errorf("could not export %s: %w", name, err)
			}
			docs, _, err := drain(gctx, cursor, 0)
			if err != nil {
				return fmt.Errorf("could not export %s: %w", name, err)
			}
			mu.Lock()
			full[name] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(full); err != nil {
		return 0, fmt.Errorf("could not write export: %w", err)
	}
	return len(full), nil
}
