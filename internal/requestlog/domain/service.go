package domain

import (
	"context"
	"time"

	"github.com/propbase/propbase/internal/actor"
)

// Entry is what callers hand to the recorder; persistence fields are
// filled in by the implementation.
type Entry struct {
	Action  string
	Actor   actor.Actor
	Err     error
	Started time.Time
	Detail  map[string]any
}

// Recorder writes request log rows. Record never returns an error:
// storage failures are logged and swallowed so observability can never
// fail the primary operation.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}
