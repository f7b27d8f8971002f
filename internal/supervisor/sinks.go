package supervisor

import (
	"context"
	"log"

	"skywatch/internal/archive"
	"skywatch/internal/catalog"
	"skywatch/internal/recorder"
	"skywatch/internal/stacker"
)

// indexingStackSink wraps a stacker.StackSink so every successful Persist is
// also indexed in the Catalog, the way EventRecorder's CatalogIndexer hook
// works on the event side. store may be nil to disable indexing.
type indexingStackSink struct {
	inner stacker.StackSink
	path  func(*stacker.StackedFrame) string
	store *catalog.Store
	runID string
}

func (s *indexingStackSink) Persist(ctx context.Context, sf *stacker.StackedFrame) error {
	if err := s.inner.Persist(ctx, sf); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	if err := s.store.InsertStackRecord(ctx, s.runID, sf.Start, sf.End, sf.N, string(sf.Method), s.path(sf)); err != nil {
		log.Printf("[supervisor] catalog index of stack window %s-%s failed: %v", sf.Start, sf.End, err)
	}
	return nil
}

// archiveMirrorSink wraps a recorder.StorageSink so every artifact durably
// written locally is also enqueued for best-effort upload, per
// SPEC_FULL.md §4.10's local-first, remote-best-effort posture.
type archiveMirrorSink struct {
	inner   recorder.StorageSink
	archive *archive.Sink
}

func (s *archiveMirrorSink) Persist(ctx context.Context, dir, name string, data []byte) error {
	if err := s.inner.Persist(ctx, dir, name, data); err != nil {
		return err
	}
	if s.archive != nil {
		s.archive.Enqueue(dir, name, data)
	}
	return nil
}
