// Package logfields holds the field keys shared by log entries and span attributes.
package logfields

const (
	Name      = "name"
	Operation = "operation"

	// virtio-gpu objects

	ContextID  = "ctx-id"
	ResourceID = "res-id"
	BlobID     = "blob-id"
	FenceID    = "fence-id"
	TaskID     = "task-id"
	TrackID    = "track-id"
	CapsetID   = "capset-id"
	Ring       = "ring"
	Handle     = "handle"
	HandleType = "handle-type"

	// command stream

	OpCode  = "opcode"
	CmdSize = "cmd-size"

	// resource layout

	ResourceType = "res-type"
	Format       = "format"
	Bind         = "bind"
	Width        = "width"
	Height       = "height"
	Box          = "box"
	Offset       = "offset"
	BlobMem      = "blob-mem"
	BlobFlags    = "blob-flags"

	Bytes = "bytes"
	Path  = "path"
	Pipe  = "pipe"

	Reason  = "reason"
	Feature = "feature"
	Key     = "key"
	Bool    = "bool"

	Duration  = "duration"
	StartTime = "startTime"
	EndTime   = "endTime"

	TraceID      = "traceID"
	SpanID       = "spanID"
	ParentSpanID = "parentSpanID"
)
