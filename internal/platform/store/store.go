package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "uvfleet/internal/platform/errors"
)

// Record is one JSON object document keyed by ID.
type Record struct {
	ID   string
	Data json.RawMessage
}

type IndexKind int

const (
	IndexString IndexKind = iota
	// IndexTime fields hold RFC3339 strings and sort chronologically.
	IndexTime
)

// Collection declares a named record set and the fields it may be sorted by.
type Collection struct {
	Name    string
	Indexes map[string]IndexKind
}

const (
	LogsCollection      = "logs"
	SchedulesCollection = "schedules"
)

var (
	Logs = Collection{
		Name:    LogsCollection,
		Indexes: map[string]IndexKind{"timestamp": IndexTime, "deviceId": IndexString},
	}
	Schedules = Collection{
		Name:    SchedulesCollection,
		Indexes: map[string]IndexKind{"datetime": IndexTime, "deviceId": IndexString},
	}
)

// Store persists records per collection. GetAll returns records ordered by
// ID; GetAllSortedBy orders ascending by a declared index.
type Store interface {
	Put(ctx context.Context, collection string, record Record) error
	GetAll(ctx context.Context, collection string) ([]Record, error)
	GetAllSortedBy(ctx context.Context, collection, field string) ([]Record, error)
	Delete(ctx context.Context, collection, id string) error
	Update(ctx context.Context, collection, id string, partial map[string]any) error
	Clear(ctx context.Context, collection string) error
	Close() error
}

// Open selects a backend by driver name: "sqlite" or "bolt".
func Open(driver, path string, collections ...Collection) (Store, error) {
	if len(collections) == 0 {
		collections = []Collection{Logs, Schedules}
	}
	switch driver {
	case "sqlite":
		s, err := OpenSQLite(path, collections...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "bolt":
		s, err := OpenBolt(path, collections...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unsupported storage driver %q", apperrors.ErrInvalidInput, driver)
	}
}

// Marshal encodes v as a record body.
func Marshal(id string, v any) (Record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("%w: encode %s: %v", apperrors.ErrPersistence, id, err)
	}
	return Record{ID: id, Data: raw}, nil
}

type catalog map[string]Collection

func newCatalog(collections []Collection) catalog {
	out := catalog{}
	for _, c := range collections {
		out[c.Name] = c
	}
	return out
}

func (c catalog) lookup(name string) (Collection, error) {
	col, ok := c[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: unknown collection %q", apperrors.ErrInvalidInput, name)
	}
	return col, nil
}

func (c catalog) index(name, field string) (Collection, IndexKind, error) {
	col, err := c.lookup(name)
	if err != nil {
		return Collection{}, 0, err
	}
	kind, ok := col.Indexes[field]
	if !ok {
		return Collection{}, 0, fmt.Errorf("%w: %s has no index %q", apperrors.ErrInvalidInput, name, field)
	}
	return col, kind, nil
}

// sortKey is the comparable value of one index field.
type sortKey struct {
	num int64
	str string
}

func (k sortKey) less(o sortKey) bool {
	if k.num != o.num {
		return k.num < o.num
	}
	return k.str < o.str
}

func decodeDoc(record Record) (map[string]any, error) {
	doc := map[string]any{}
	if err := json.Unmarshal(record.Data, &doc); err != nil {
		return nil, fmt.Errorf("%w: record %s is not a JSON object: %v", apperrors.ErrPersistence, record.ID, err)
	}
	return doc, nil
}

func indexValue(doc map[string]any, field string, kind IndexKind) sortKey {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return sortKey{}
	}
	text, _ := raw.(string)
	if kind == IndexTime {
		parsed, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return sortKey{}
		}
		return sortKey{num: parsed.UnixNano()}
	}
	if text == "" {
		text = fmt.Sprint(raw)
	}
	return sortKey{str: text}
}

func merge(record Record, partial map[string]any) (Record, error) {
	doc, err := decodeDoc(record)
	if err != nil {
		return Record{}, err
	}
	for key, value := range partial {
		doc[key] = value
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Record{}, fmt.Errorf("%w: encode %s: %v", apperrors.ErrPersistence, record.ID, err)
	}
	return Record{ID: record.ID, Data: raw}, nil
}

func validRecord(record Record) error {
	if record.ID == "" {
		return fmt.Errorf("%w: record id is required", apperrors.ErrInvalidInput)
	}
	if !json.Valid(record.Data) {
		return fmt.Errorf("%w: record %s body is not valid JSON", apperrors.ErrInvalidInput, record.ID)
	}
	return nil
}
