// Package catalog holds the list views behind the customer, vendor, people
// and attribute pages.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"intsync/internal/backend"
	"intsync/internal/models"
)

var ErrInvalidRecord = errors.New("invalid record")

type Record interface {
	RecordID() string
}

type Source[T Record] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, record T) (T, error)
	Delete(ctx context.Context, id string) error
}

type backendSource[T Record] struct {
	client *backend.Client
	kind   backend.Kind
}

// FromBackend serves a view from one backend collection.
func FromBackend[T Record](client *backend.Client, kind backend.Kind) Source[T] {
	return backendSource[T]{client: client, kind: kind}
}

func (s backendSource[T]) List(ctx context.Context) ([]T, error) {
	return backend.List[T](ctx, s.client, s.kind)
}

func (s backendSource[T]) Create(ctx context.Context, record T) (T, error) {
	return backend.Create(ctx, s.client, s.kind, record)
}

func (s backendSource[T]) Delete(ctx context.Context, id string) error {
	return backend.Delete(ctx, s.client, s.kind, id)
}

// View is the in-memory list a page works on. It is not cached across
// requests.
type View[T Record] struct {
	source Source[T]
	logger zerolog.Logger

	mu    sync.Mutex
	items []T
}

func NewView[T Record](source Source[T], logger zerolog.Logger) *View[T] {
	return &View[T]{source: source, logger: logger}
}

func (v *View[T]) Load(ctx context.Context) ([]T, error) {
	items, err := v.source.List(ctx)
	if err != nil {
		v.logger.Error().Err(err).Msg("load list failed")
		return nil, err
	}
	v.mu.Lock()
	v.items = items
	v.mu.Unlock()
	return v.Items(), nil
}

func (v *View[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

func (v *View[T]) Find(id string) (T, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, item := range v.items {
		if item.RecordID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Delete issues a single backend delete and drops exactly that id from the
// held list.
func (v *View[T]) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if err := v.source.Delete(ctx, id); err != nil {
		v.logger.Error().Err(err).Str("id", id).Msg("delete record failed")
		return err
	}
	v.mu.Lock()
	kept := v.items[:0]
	for _, item := range v.items {
		if item.RecordID() != id {
			kept = append(kept, item)
		}
	}
	v.items = kept
	v.mu.Unlock()
	return nil
}

// Create posts record and then runs refresh. A nil refresh reloads the view.
func (v *View[T]) Create(ctx context.Context, record T, refresh func(context.Context) error) (T, error) {
	if err := Validate(record); err != nil {
		var zero T
		return zero, err
	}
	created, err := v.source.Create(ctx, record)
	if err != nil {
		v.logger.Error().Err(err).Msg("create record failed")
		var zero T
		return zero, err
	}
	if refresh == nil {
		refresh = func(ctx context.Context) error {
			_, err := v.Load(ctx)
			return err
		}
	}
	if err := refresh(ctx); err != nil {
		v.logger.Warn().Err(err).Msg("refresh after create failed")
	}
	return created, nil
}

// Validate checks the fields the forms require. Everything else is left to
// the backend.
func Validate(record any) error {
	switch r := record.(type) {
	case models.Customer:
		return requireField("name", r.Name)
	case models.Vendor:
		return requireField("name", r.Name)
	case models.Person:
		return requireField("name", r.Name)
	case models.Attribute:
		return requireField("key", r.Key)
	}
	return nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRecord, name)
	}
	return nil
}
