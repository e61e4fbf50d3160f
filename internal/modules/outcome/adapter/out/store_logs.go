package out

import (
	"context"
	"encoding/json"
	"fmt"

	"uvfleet/internal/modules/outcome/domain"
	apperrors "uvfleet/internal/platform/errors"
	"uvfleet/internal/platform/store"
)

type StoreLogs struct {
	store store.Store
}

func NewStoreLogs(s store.Store) *StoreLogs {
	return &StoreLogs{store: s}
}

func (s *StoreLogs) Append(ctx context.Context, log domain.SessionLog) error {
	record, err := store.Marshal(log.ID, log)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, store.LogsCollection, record)
}

func (s *StoreLogs) List(ctx context.Context) ([]domain.SessionLog, error) {
	records, err := s.store.GetAllSortedBy(ctx, store.LogsCollection, "timestamp")
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionLog, 0, len(records))
	for _, record := range records {
		log := domain.SessionLog{}
		if err := json.Unmarshal(record.Data, &log); err != nil {
			return nil, fmt.Errorf("%w: decode log %s: %v", apperrors.ErrPersistence, record.ID, err)
		}
		out = append(out, log)
	}
	return out, nil
}

func (s *StoreLogs) Clear(ctx context.Context) error {
	return s.store.Clear(ctx, store.LogsCollection)
}

// StoreSchedules writes schedule resolutions into the shared schedules
// collection.
type StoreSchedules struct {
	store store.Store
}

func NewStoreSchedules(s store.Store) *StoreSchedules {
	return &StoreSchedules{store: s}
}

func (s *StoreSchedules) SetStatus(ctx context.Context, scheduleID, status string) error {
	return s.store.Update(ctx, store.SchedulesCollection, scheduleID, map[string]any{"status": status})
}
