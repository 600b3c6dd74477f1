// Package storage keeps the series a user is working on between requests.
//
// A session is created for every upload, sample or import and is looked up
// again by the refit, export and inspection endpoints. MemoryStore serves a
// single process; RedisStore lets several instances share sessions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/tsdash/pkg/timeseries"
)

// Session sources.
const (
	SourceUpload = "upload"
	SourceSample = "sample"
	SourceImport = "import"
)

// Session is one loaded series.
type Session struct {
	ID        string             `json:"id"`
	Label     string             `json:"label"`
	Source    string             `json:"source"`
	Series    *timeseries.Series `json:"series"`
	CreatedAt time.Time          `json:"created_at"`
}

// Store persists sessions by id.
type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, bool, error)
}

var errEmptyID = errors.New("session id required")

func validate(s Session) error {
	if s.ID == "" {
		return errEmptyID
	}
	if err := validID(s.ID); err != nil {
		return err
	}
	if s.Series == nil {
		return fmt.Errorf("session %s has no series", s.ID)
	}
	return nil
}

// validID accepts the characters of a UUID string. Ids end up in Redis keys
// and URLs.
func validID(id string) error {
	if id == "" {
		return errEmptyID
	}
	for _, c := range id {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-') {
			return fmt.Errorf("invalid session id %q: only alphanumeric characters and hyphens allowed", id)
		}
	}
	return nil
}
