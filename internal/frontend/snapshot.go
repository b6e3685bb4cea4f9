package frontend

import (
	"bytes"
	"context"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/trace"

	"github.com/Microsoft/virtiogpu/internal/gpuctx"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
	"github.com/Microsoft/virtiogpu/internal/oc"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/snapshot"
)

// Snapshot pauses the backend, then persists its state and the context and resource
// tables into dir. The backend stays paused until [Frontend.Restore] resumes it.
func (f *Frontend) Snapshot(ctx context.Context, dir string) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::Snapshot")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.StringAttribute(logfields.Path, dir))

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpenLocked(); err != nil {
		return err
	}

	f.be.PauseAllPreSave()
	var renderer bytes.Buffer
	if err := f.be.Save(&renderer); err != nil {
		return errors.Wrap(err, "failed to save renderer state")
	}

	tables := &snapshot.Tables{Renderer: renderer.Bytes()}
	for _, id := range sortedContextIDs(f.contexts) {
		tables.Contexts = append(tables.Contexts, f.contexts[id].Snapshot())
	}
	f.resources.Ascend(func(e resourceEntry) bool {
		var rec *snapshot.ResourceRecord
		rec, err = e.res.Snapshot()
		if err != nil {
			return false
		}
		tables.Resources = append(tables.Resources, rec)
		return true
	})
	if err != nil {
		return err
	}

	store, err := snapshot.Open(dir)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, tables); err != nil {
		return err
	}

	log.G(ctx).WithFields(logrus.Fields{
		logfields.Path:  store.Path(),
		"contexts":      len(tables.Contexts),
		"resources":     len(tables.Resources),
		logfields.Bytes: renderer.Len(),
	}).Info("saved virtio-gpu snapshot")
	return nil
}

// Restore loads the backend state saved in dir, replaces the context and resource
// tables, and resumes the backend. Malformed records are rejected before the backend is
// touched. If rebuilding a resource fails after the backend loaded its state, the
// external objects already claimed are handed back to the manager, the current tables
// are left untouched and the backend stays paused, so the restore can be retried.
func (f *Frontend) Restore(ctx context.Context, dir string) (err error) {
	ctx, span := oc.StartSpan(ctx, "frontend::Restore")
	defer span.End()
	defer func() { oc.SetSpanStatus(span, err) }()
	span.AddAttributes(trace.StringAttribute(logfields.Path, dir))

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkOpenLocked(); err != nil {
		return err
	}

	store, err := snapshot.Open(dir)
	if err != nil {
		return err
	}
	defer store.Close()
	tables, err := store.Load(ctx)
	if err != nil {
		return err
	}
	for _, rec := range tables.Resources {
		if err := resource.CheckRecord(rec); err != nil {
			return err
		}
	}

	if err := f.be.Load(bytes.NewReader(tables.Renderer)); err != nil {
		return errors.Wrap(err, "failed to load renderer state")
	}

	resources := btree.NewG(16, resourceLess)
	for _, rec := range tables.Resources {
		r, err := resource.Restore(f.be, f.objects, rec)
		if err != nil {
			resources.Ascend(func(e resourceEntry) bool {
				e.res.Unrestore(ctx, f.objects)
				return true
			})
			log.G(ctx).WithError(err).WithField(logfields.ResourceID, rec.ID).Warning("restore failed, backend left paused")
			return err
		}
		resources.ReplaceOrInsert(resourceEntry{id: r.ID(), res: r})
	}
	contexts := make(map[uint32]*gpuctx.Context, len(tables.Contexts))
	for _, rec := range tables.Contexts {
		contexts[rec.ID] = gpuctx.Restore(rec)
	}
	f.be.ResumeAll()

	discardAll(ctx, f.resources)
	f.contexts = contexts
	f.resources = resources
	for id, info := range f.syncs {
		closeSync(ctx, id, info)
	}
	clear(f.syncs)

	log.G(ctx).WithFields(logrus.Fields{
		logfields.Path: store.Path(),
		"contexts":     len(contexts),
		"resources":    resources.Len(),
	}).Info("restored virtio-gpu snapshot")
	return nil
}

// discardAll drops the memory held by every resource in t without closing backend
// objects, which the restored backend state owns.
func discardAll(ctx context.Context, t *btree.BTreeG[resourceEntry]) {
	t.Ascend(func(e resourceEntry) bool {
		e.res.Discard(ctx)
		return true
	})
	t.Clear(false)
}
