package refresher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/noe-create/medidhub-cpv-sub000/internal/models"

	"github.com/rs/zerolog"
)

// Lister is the slice of the entry store the refresher needs: a fresh read
// of the active queue. Every refresh is a full re-read of persisted state,
// so a restarted viewer recovers without replaying anything.
type Lister interface {
	ListActive(ctx context.Context, serviceType string) ([]models.QueueEntry, error)
}

// Lane is one service-type column on the waiting-room board, oldest
// check-in first.
type Lane struct {
	ServiceType string              `json:"service_type"`
	Entries     []models.QueueEntry `json:"entries"`
}

// View is one client's rendered snapshot of the queue. Stale marks a view
// whose last refresh failed; callers keep showing it but flag it, so an
// outage is never confused with an authoritatively empty queue.
type View struct {
	Lanes       []Lane    `json:"lanes"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Stale       bool      `json:"stale"`
}

type Options struct {
	ServiceType string
	Logger      zerolog.Logger
}

// Refresher reconciles one viewer with the shared queue by polling. There
// is no push channel; remote writes become visible within one interval, and
// the owner of this refresher regains read-your-own-write by calling
// Refresh right after a successful mutation.
type Refresher struct {
	lister      Lister
	interval    time.Duration
	serviceType string
	logger      zerolog.Logger

	mu     sync.RWMutex
	view   View
	loaded bool
}

func New(lister Lister, interval time.Duration, options Options) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{
		lister:      lister,
		interval:    interval,
		serviceType: options.ServiceType,
		logger:      options.Logger,
	}
}

// Run polls until the context is cancelled. The first read happens
// immediately rather than one interval in.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("initial queue refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("queue refresh failed, serving last known view")
			}
		}
	}
}

// Refresh performs one fresh read now. On failure the previous view is kept
// and marked stale.
func (r *Refresher) Refresh(ctx context.Context) error {
	entries, err := r.lister.ListActive(ctx, r.serviceType)
	if err != nil {
		r.mu.Lock()
		r.view.Stale = true
		r.mu.Unlock()
		return err
	}

	view := View{
		Lanes:       groupLanes(entries),
		RefreshedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.view = view
	r.loaded = true
	r.mu.Unlock()
	return nil
}

// View returns the last known view. The second result is false until the
// first successful refresh, so callers can tell "nothing loaded" from an
// empty queue.
func (r *Refresher) View() (View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view, r.loaded
}

// Interval reports the polling cadence this refresher runs at.
func (r *Refresher) Interval() time.Duration {
	return r.interval
}

func groupLanes(entries []models.QueueEntry) []Lane {
	index := make(map[string]int)
	var lanes []Lane
	for _, entry := range entries {
		i, ok := index[entry.ServiceType]
		if !ok {
			i = len(lanes)
			index[entry.ServiceType] = i
			lanes = append(lanes, Lane{ServiceType: entry.ServiceType})
		}
		lanes[i].Entries = append(lanes[i].Entries, entry)
	}
	// Store order already has oldest first within a lane; lanes themselves
	// sort by name for a stable board layout.
	sort.Slice(lanes, func(a, b int) bool { return lanes[a].ServiceType < lanes[b].ServiceType })
	return lanes
}
