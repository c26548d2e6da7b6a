package store

import (
	"fmt"
	"time"

	"github.com/jacentio/relval/model"
)

// ID returns the `_id` of doc, "" when missing.
func ID(doc Document) string {
	s, _ := doc[model.MetaID].(string)
	return s
}

// Revision returns the `_rev` of doc, 0 when missing.
func Revision(doc Document) int64 {
	switch v := doc[model.MetaRevision].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// RequireID returns the identifier of doc or ErrInvalidDocument.
func RequireID(doc Document) (string, error) {
	id := ID(doc)
	if id == "" {
		return "", ErrInvalidDocument
	}
	return id, nil
}

// Strip returns a copy of doc without metadata keys.
func Strip(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if model.IsMetaKey(k) {
			continue
		}
		out[k] = model.DeepCopy(v)
	}
	return out
}

// Stamp returns a copy of doc carrying the given metadata.
func Stamp(doc Document, id string, rev int64, at time.Time) Document {
	out := Strip(doc)
	out[model.MetaID] = id
	out[model.MetaRevision] = float64(rev)
	out[model.MetaUpdated] = float64(at.Unix())
	return out
}

// CheckRevision compares the revision a document was loaded at with the
// stored one. A zero expected revision is an unconditional write.
func CheckRevision(expected, stored int64, exists bool) error {
	if expected == 0 {
		return nil
	}
	if !exists || expected != stored {
		return fmt.Errorf("%w: expected revision %d, stored %d", ErrConcurrentModification, expected, stored)
	}
	return nil
}

// Normalize converts doc into plain JSON values.
func Normalize(doc Document) (Document, error) {
	v, err := model.Normalize(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	out, _ := v.(map[string]any)
	return out, nil
}
