package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	api "github.com/fyrsmithlabs/contextsync/internal/http"
)

// fetchTimeout bounds one dashboard refresh.
const fetchTimeout = 5 * time.Second

// Source is the daemon API the dashboard polls.
type Source interface {
	Status(ctx context.Context) (autosync.Status, error)
	Projects(ctx context.Context) ([]api.ProjectResponse, error)
	Notices(ctx context.Context, since uint64) (*api.NoticesResponse, error)
	Trigger(ctx context.Context, trigger autosync.Trigger) (bool, error)
}

// Snapshot is one refresh of daemon state.
type Snapshot struct {
	Status   autosync.Status
	Projects []api.ProjectResponse

	// Notices are the ones recorded after the previous snapshot.
	Notices []autosync.Notice
	Latest  uint64
}

// EnabledCount returns how many projects take part in auto-sync.
func (s Snapshot) EnabledCount() int {
	n := 0
	for _, p := range s.Projects {
		if p.Enabled {
			n++
		}
	}
	return n
}

// Fetch reads status, projects and notices newer than since.
func Fetch(ctx context.Context, src Source, since uint64) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	st, err := src.Status(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching status: %w", err)
	}
	projects, err := src.Projects(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching projects: %w", err)
	}
	notices, err := src.Notices(ctx, since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching notices: %w", err)
	}

	return Snapshot{
		Status:   st,
		Projects: projects,
		Notices:  notices.Notices,
		Latest:   notices.Latest,
	}, nil
}
