package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"time"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archiver writes raw fetch batches as JSON documents under
// <prefix>/<yyyy>/<mm>/<dd>/<run id>/<source>.json.
type Archiver struct {
	store  ObjectStorage
	prefix string
	now    func() time.Time
}

// NewArchiver wraps store. A nil store yields a nil Archiver, whose
// methods are no-ops.
func NewArchiver(store ObjectStorage, prefix string) *Archiver {
	if store == nil {
		return nil
	}
	return &Archiver{store: store, prefix: prefix, now: time.Now}
}

// Key returns the object key for one source's batch within a run.
func (a *Archiver) Key(runID, sourceLabel string) string {
	day := a.now().UTC().Format("2006/01/02")
	name := unsafeKeyChars.ReplaceAllString(sourceLabel, "_") + ".json"
	return path.Join(a.prefix, day, runID, name)
}

// Archive marshals batch and uploads it, returning the object key.
func (a *Archiver) Archive(ctx context.Context, runID, sourceLabel string, batch interface{}) (string, error) {
	if a == nil {
		return "", nil
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("failed to encode archive batch: %w", err)
	}

	key := a.Key(runID, sourceLabel)
	if err := a.store.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return "", err
	}
	return key, nil
}
