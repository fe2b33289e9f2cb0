package metadata

import (
	"context"
	"time"

	"github.com/driftbox/driftbox/internal/metrics"
)

// instrumented records per-operation latency for any Store.
type instrumented struct {
	next Store
}

// Instrument wraps s so every call is observed in driftbox_metadata_operation_duration_seconds.
func Instrument(s Store) Store {
	if _, ok := s.(*instrumented); ok {
		return s
	}
	return &instrumented{next: s}
}

func (i *instrumented) Get(ctx context.Context, ref DocumentRef) (doc Document, err error) {
	defer func(start time.Time) { metrics.ObserveMetadataOp("get", start, ignoreNotFound(err)) }(time.Now())
	return i.next.Get(ctx, ref)
}

func (i *instrumented) Set(ctx context.Context, ref DocumentRef, doc Document) (err error) {
	defer func(start time.Time) { metrics.ObserveMetadataOp("set", start, err) }(time.Now())
	return i.next.Set(ctx, ref, doc)
}

func (i *instrumented) Update(ctx context.Context, ref DocumentRef, fields Document) (err error) {
	defer func(start time.Time) { metrics.ObserveMetadataOp("update", start, err) }(time.Now())
	return i.next.Update(ctx, ref, fields)
}

func (i *instrumented) Delete(ctx context.Context, ref DocumentRef) (err error) {
	defer func(start time.Time) { metrics.ObserveMetadataOp("delete", start, err) }(time.Now())
	return i.next.Delete(ctx, ref)
}

func (i *instrumented) Stream(ctx context.Context, col CollectionRef) (snaps []Snapshot, err error) {
	defer func(start time.Time) { metrics.ObserveMetadataOp("stream", start, err) }(time.Now())
	return i.next.Stream(ctx, col)
}

func (i *instrumented) Exists(ctx context.Context, ref DocumentRef) (ok bool, err error) {
	defer func(start time.Time) { metrics.ObserveMetadataOp("exists", start, err) }(time.Now())
	return i.next.Exists(ctx, ref)
}

func (i *instrumented) Close() error {
	return i.next.Close()
}

func ignoreNotFound(err error) error {
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}
