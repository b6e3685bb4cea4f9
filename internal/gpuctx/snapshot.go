package gpuctx

import (
	"maps"

	"github.com/Microsoft/virtiogpu/internal/snapshot"
)

// Snapshot returns the persisted form of c. The host pipe, pending blob templates and
// acquired sync are not kept.
func (c *Context) Snapshot() *snapshot.ContextRecord {
	return &snapshot.ContextRecord{
		ID:                  c.id,
		Name:                c.name,
		CapsetID:            c.capsetID,
		AttachedResources:   c.AttachedResources(),
		AddressSpaceHandles: maps.Clone(c.asgHandles),
	}
}

// Restore rebuilds a context from rec. The context has no host pipe until the pipe
// service rebinds one.
func Restore(rec *snapshot.ContextRecord) *Context {
	c := newContext(rec.ID, rec.Name, rec.CapsetID)
	for _, id := range rec.AttachedResources {
		c.AttachResource(id)
	}
	maps.Copy(c.asgHandles, rec.AddressSpaceHandles)
	return c
}
