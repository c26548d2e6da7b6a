package controller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jacentio/relval/locker"
	"github.com/jacentio/relval/store"
)

const (
	serialWidth    = 5
	serialMax      = 99999
	serialPageSize = 100
)

// SerialAllocator hands out identifiers of the form `<group>-NNNNN`.
type SerialAllocator struct {
	coll    store.Collection
	locks   *locker.Manager
	idField string
}

// NewSerialAllocator creates an allocator over the identifiers stored in
// idField of coll.
func NewSerialAllocator(coll store.Collection, locks *locker.Manager, idField string) *SerialAllocator {
	return &SerialAllocator{coll: coll, locks: locks, idField: idField}
}

// LockKey returns the lock serializing allocations in group.
func LockKey(group string) string {
	return "generate-id-" + group
}

// Allocate picks the serial after the highest stored one in group and calls
// fn with the new identifier while the group lock is held. fn is expected to
// store the document; when it fails the serial is not consumed.
func (a *SerialAllocator) Allocate(ctx context.Context, group string, fn func(ctx context.Context, id string) error) (string, error) {
	ctx, release, err := a.locks.Acquire(ctx, LockKey(group))
	if err != nil {
		return "", err
	}
	defer release()

	last, err := a.highest(ctx, group)
	if err != nil {
		return "", err
	}
	if last >= serialMax {
		return "", fmt.Errorf("%w: %s", ErrSerialExhausted, group)
	}
	id := fmt.Sprintf("%s-%0*d", group, serialWidth, last+1)
	if err := fn(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// highest returns the largest serial stored in group, 0 when there is none.
// Identifiers sharing the prefix with a longer remainder (another group such
// as `<group>-<processing string>`) are skipped.
func (a *SerialAllocator) highest(ctx context.Context, group string) (int, error) {
	descending := false
	prefix := group + "-"
	seen := 0
	for page := 0; ; page++ {
		docs, total, err := a.coll.Query(ctx, store.Query{
			Filter:    a.idField + "=" + prefix + "*",
			Page:      page,
			Limit:     serialPageSize,
			Sort:      a.idField,
			Ascending: &descending,
		})
		if err != nil {
			return 0, fmt.Errorf("find serials of %s: %w", group, err)
		}
		for _, doc := range docs {
			id, _ := doc[a.idField].(string)
			if n, ok := parseSerial(id, prefix); ok {
				return n, nil
			}
		}
		seen += len(docs)
		if len(docs) == 0 || seen >= total {
			return 0, nil
		}
	}
}

func parseSerial(id, prefix string) (int, bool) {
	if len(id) != len(prefix)+serialWidth || id[:len(prefix)] != prefix {
		return 0, false
	}
	suffix := id[len(prefix):]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	return n, err == nil
}
