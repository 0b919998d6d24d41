// Package view keeps the registry of views: their fragmentation chain,
// pagination properties and member filter.
package view

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/rzbill/ldes/internal/fragment"
	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// ErrNotFound is returned for views that were never ensured or were deleted.
var ErrNotFound = errors.New("view not found")

// Fragmentation is one strategy of a view's chain, outermost first.
type Fragmentation struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Definition is the stored record of a view.
type Definition struct {
	Name           fragment.ViewName `json:"name"`
	CreatedAtMs    int64             `json:"createdAtMs"`
	Fragmentations []Fragmentation   `json:"fragmentations,omitempty"`
	Pagination     map[string]string `json:"pagination,omitempty"`
	MemberFilter   string            `json:"memberFilter,omitempty"`
}

var viewPrefix = []byte("view/")

func viewKey(name fragment.ViewName) []byte {
	s := name.String()
	k := make([]byte, 0, len(viewPrefix)+len(s))
	k = append(k, viewPrefix...)
	return append(k, s...)
}

// Registry stores view definitions in Pebble.
type Registry struct {
	db  *pebblestore.DB
	now func() time.Time
}

func NewRegistry(db *pebblestore.DB) *Registry {
	return &Registry{db: db, now: time.Now}
}

// Ensure stores d unless the view exists and returns the effective
// definition. created is false when an earlier definition was kept.
func (r *Registry) Ensure(ctx context.Context, d Definition) (Definition, bool, error) {
	if d.Name.IsZero() {
		return Definition{}, false, errors.New("view name is required")
	}
	d.CreatedAtMs = r.now().UnixMilli()
	raw, err := json.Marshal(d)
	if err != nil {
		return Definition{}, false, err
	}
	stored, created, err := r.db.SetIfAbsent(ctx, viewKey(d.Name), raw, nil)
	if err != nil {
		return Definition{}, false, errors.Wrapf(err, "ensure view %s", d.Name)
	}
	if created {
		return d, true, nil
	}
	var existing Definition
	if err := json.Unmarshal(stored, &existing); err != nil {
		return Definition{}, false, errors.Wrapf(err, "decode view %s", d.Name)
	}
	return existing, false, nil
}

func (r *Registry) Get(name fragment.ViewName) (Definition, error) {
	raw, err := r.db.Get(viewKey(name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Definition{}, errors.Wrapf(ErrNotFound, "view %s", name)
	}
	if err != nil {
		return Definition{}, err
	}
	var d Definition
	if err := json.Unmarshal(raw, &d); err != nil {
		return Definition{}, errors.Wrapf(err, "decode view %s", name)
	}
	return d, nil
}

// Delete removes the definition of name. It reports whether one existed.
func (r *Registry) Delete(ctx context.Context, name fragment.ViewName) (bool, error) {
	key := viewKey(name)
	existed := false
	err := r.db.Update(ctx, key, func(_ []byte, found bool, b *pebble.Batch) error {
		existed = found
		if !found {
			return nil
		}
		return b.Delete(key, nil)
	})
	return existed, err
}

// List returns every view ordered by name.
func (r *Registry) List() ([]Definition, error) {
	var out []Definition
	err := r.db.ScanPrefix(viewPrefix, func(_, v []byte) (bool, error) {
		var d Definition
		if err := json.Unmarshal(v, &d); err != nil {
			return false, err
		}
		out = append(out, d)
		return true, nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name.String() < out[j].Name.String() })
	return out, err
}
