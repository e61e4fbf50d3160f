package out

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"uvfleet/internal/modules/schedule/domain"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/store"
)

type StoreRepository struct {
	store store.Store
}

func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{store: s}
}

func (r *StoreRepository) Save(ctx context.Context, schedule domain.Schedule) error {
	record, err := store.Marshal(schedule.ID, schedule)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, store.SchedulesCollection, record)
}

func (r *StoreRepository) List(ctx context.Context) ([]domain.Schedule, error) {
	records, err := r.store.GetAllSortedBy(ctx, store.SchedulesCollection, "datetime")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Schedule, 0, len(records))
	for _, record := range records {
		s := domain.Schedule{}
		if err := json.Unmarshal(record.Data, &s); err != nil {
			return nil, fmt.Errorf("%w: decode schedule %s: %v", apperrors.ErrPersistence, record.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, store.SchedulesCollection, id)
}

func (r *StoreRepository) MarkPromoted(ctx context.Context, id string, at time.Time) error {
	return r.store.Update(ctx, store.SchedulesCollection, id, map[string]any{
		"promotedAt": at.UTC().Format(time.RFC3339Nano),
	})
}
