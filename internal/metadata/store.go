// Package metadata defines the document store the folder tree lives in.
//
// The store is addressed like a hierarchical document database: a
// collection is a slash separated path ("folders/alice/user_folders"), a
// document is (collection, id), and a document can own sub-collections
// addressed by extending its path ("folders/alice/user_folders/docs/files").
package metadata

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a flat set of fields. Values are strings, bools, integers or
// floats; backends that round-trip through JSON or BSON may hand numbers
// back as a different numeric type, so read them with models.Int64Field.
type Document map[string]interface{}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// CollectionRef names a collection.
type CollectionRef string

// Collection joins path segments into a collection reference.
func Collection(segments ...string) CollectionRef {
	return CollectionRef(strings.Join(segments, "/"))
}

// Doc returns a reference to the document id inside c.
func (c CollectionRef) Doc(id string) DocumentRef {
	return DocumentRef{Collection: c, ID: id}
}

func (c CollectionRef) String() string {
	return string(c)
}

// DocumentRef names a document.
type DocumentRef struct {
	Collection CollectionRef
	ID         string
}

// Sub returns the named sub-collection owned by this document.
func (d DocumentRef) Sub(name string) CollectionRef {
	return CollectionRef(d.Path() + "/" + name)
}

// Path renders "collection/id".
func (d DocumentRef) Path() string {
	return string(d.Collection) + "/" + d.ID
}

func (d DocumentRef) String() string {
	return d.Path()
}

// Snapshot is one document returned by Stream.
type Snapshot struct {
	ID   string
	Data Document
}

// Store is the metadata backend.
//
// Stream returns every document directly in a collection (not in its
// sub-collections) in the backend's native order. Delete of a missing
// document is not an error. Update merges fields into an existing document
// and returns ErrNotFound if there is none.
type Store interface {
	Get(ctx context.Context, ref DocumentRef) (Document, error)
	Set(ctx context.Context, ref DocumentRef, doc Document) error
	Update(ctx context.Context, ref DocumentRef, fields Document) error
	Delete(ctx context.Context, ref DocumentRef) error
	Stream(ctx context.Context, col CollectionRef) ([]Snapshot, error)
	Exists(ctx context.Context, ref DocumentRef) (bool, error)
	Close() error
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
