package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/repository"
)

// ViewHistoryRepo keeps page views in a slice.
type ViewHistoryRepo struct {
	mu      sync.RWMutex
	entries []*entity.ViewHistory
}

func NewViewHistoryRepo() *ViewHistoryRepo {
	return &ViewHistoryRepo{}
}

func (r *ViewHistoryRepo) Create(_ context.Context, v *entity.ViewHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now()
	cp := *v
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *ViewHistoryRepo) ListBySession(_ context.Context, sessionID string, limit int) ([]*entity.ViewHistory, error) {
	return r.list(func(v *entity.ViewHistory) bool { return v.SessionID == sessionID }, limit), nil
}

func (r *ViewHistoryRepo) ListByUser(_ context.Context, userID string, limit int) ([]*entity.ViewHistory, error) {
	return r.list(func(v *entity.ViewHistory) bool { return v.UserID != nil && *v.UserID == userID }, limit), nil
}

func (r *ViewHistoryRepo) DeleteBySession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	for _, v := range r.entries {
		if v.SessionID != sessionID {
			kept = append(kept, v)
		}
	}
	r.entries = kept
	return nil
}

func (r *ViewHistoryRepo) list(keep func(*entity.ViewHistory) bool, limit int) []*entity.ViewHistory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.ViewHistory, 0)
	// Walk backwards so equal timestamps still come out newest first.
	for i := len(r.entries) - 1; i >= 0; i-- {
		if keep(r.entries[i]) {
			cp := *r.entries[i]
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, 0, limit)
}

var _ repository.ViewHistoryRepository = (*ViewHistoryRepo)(nil)
