package snapshot

import (
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/Microsoft/virtiogpu/internal/ringblob"
)

// Field numbers. Numbers are never reused once a field is removed.
const (
	ctxFieldID       protowire.Number = 1
	ctxFieldName     protowire.Number = 2
	ctxFieldCapset   protowire.Number = 3
	ctxFieldAttached protowire.Number = 4
	ctxFieldHandle   protowire.Number = 5

	handleFieldResource protowire.Number = 1
	handleFieldHandle   protowire.Number = 2

	resFieldID           protowire.Number = 1
	resFieldType         protowire.Number = 2
	resFieldCreateArgs   protowire.Number = 3
	resFieldBlobArgs     protowire.Number = 4
	resFieldRingBlob     protowire.Number = 5
	resFieldExtDesc      protowire.Number = 6
	resFieldExtMapping   protowire.Number = 7
	resFieldContextID    protowire.Number = 8
	resFieldHasContextID protowire.Number = 9

	blobFieldMem    protowire.Number = 1
	blobFieldFlags  protowire.Number = 2
	blobFieldID     protowire.Number = 3
	blobFieldSize   protowire.Number = 4
	ringFieldID     protowire.Number = 1
	ringFieldSize   protowire.Number = 2
	ringFieldAlign  protowire.Number = 3
	ringFieldType   protowire.Number = 4
	ringFieldMemory protowire.Number = 5
	refFieldContext protowire.Number = 1
	refFieldBlobID  protowire.Number = 2
)

var errMalformed = errors.New("malformed snapshot record")

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// MarshalContext encodes a context record.
func MarshalContext(c *ContextRecord) []byte {
	var b []byte
	b = appendVarint(b, ctxFieldID, uint64(c.ID))
	b = appendBytes(b, ctxFieldName, []byte(c.Name))
	b = appendVarint(b, ctxFieldCapset, uint64(c.CapsetID))
	if len(c.AttachedResources) > 0 {
		var packed []byte
		for _, id := range c.AttachedResources {
			packed = protowire.AppendVarint(packed, uint64(id))
		}
		b = appendBytes(b, ctxFieldAttached, packed)
	}
	resIDs := make([]uint32, 0, len(c.AddressSpaceHandles))
	for id := range c.AddressSpaceHandles {
		resIDs = append(resIDs, id)
	}
	sort.Slice(resIDs, func(i, j int) bool { return resIDs[i] < resIDs[j] })
	for _, id := range resIDs {
		var entry []byte
		entry = appendVarint(entry, handleFieldResource, uint64(id))
		entry = appendVarint(entry, handleFieldHandle, uint64(c.AddressSpaceHandles[id]))
		b = appendBytes(b, ctxFieldHandle, entry)
	}
	return b
}

// UnmarshalContext decodes a context record.
func UnmarshalContext(b []byte) (*ContextRecord, error) {
	c := &ContextRecord{AddressSpaceHandles: map[uint32]uint32{}}
	var haveID bool
	err := walk(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case ctxFieldID:
			c.ID, haveID = uint32(v), true
		case ctxFieldName:
			c.Name = string(raw)
		case ctxFieldCapset:
			c.CapsetID = uint32(v)
		case ctxFieldAttached:
			for len(raw) > 0 {
				id, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return errors.Wrap(errMalformed, "attached resources")
				}
				c.AttachedResources = append(c.AttachedResources, uint32(id))
				raw = raw[n:]
			}
		case ctxFieldHandle:
			var resID, handle uint32
			var haveRes, haveHandle bool
			if err := walk(raw, func(num protowire.Number, v uint64, _ []byte) error {
				switch num {
				case handleFieldResource:
					resID, haveRes = uint32(v), true
				case handleFieldHandle:
					handle, haveHandle = uint32(v), true
				}
				return nil
			}); err != nil {
				return err
			}
			if !haveRes || !haveHandle {
				return errors.Wrap(errMalformed, "address space handle entry")
			}
			c.AddressSpaceHandles[resID] = handle
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !haveID {
		return nil, errors.Wrap(errMalformed, "context record is missing its id")
	}
	return c, nil
}

// MarshalResource encodes a resource record.
func MarshalResource(r *ResourceRecord) []byte {
	var b []byte
	b = appendVarint(b, resFieldID, uint64(r.ID))
	b = appendVarint(b, resFieldType, uint64(r.Type))
	if a := r.CreateArgs; a != nil {
		var m []byte
		for i, v := range []uint32{a.Handle, a.Target, a.Format, a.Bind, a.Width, a.Height, a.Depth, a.ArraySize, a.LastLevel, a.NrSamples, a.Flags} {
			m = appendVarint(m, protowire.Number(i+1), uint64(v))
		}
		b = appendBytes(b, resFieldCreateArgs, m)
	}
	if a := r.CreateBlobArgs; a != nil {
		var m []byte
		m = appendVarint(m, blobFieldMem, uint64(a.Mem))
		m = appendVarint(m, blobFieldFlags, uint64(a.Flags))
		m = appendVarint(m, blobFieldID, a.BlobID)
		m = appendVarint(m, blobFieldSize, a.Size)
		b = appendBytes(b, resFieldBlobArgs, m)
	}
	if rb := r.RingBlob; rb != nil {
		var m []byte
		m = appendVarint(m, ringFieldID, uint64(rb.ID))
		m = appendVarint(m, ringFieldSize, rb.Size)
		m = appendVarint(m, ringFieldAlign, rb.Alignment)
		m = appendVarint(m, ringFieldType, uint64(rb.Type))
		m = appendBytes(m, ringFieldMemory, rb.Memory)
		b = appendBytes(b, resFieldRingBlob, m)
	}
	if ref := r.ExternalDescriptor; ref != nil {
		b = appendBytes(b, resFieldExtDesc, marshalRef(ref))
	}
	if ref := r.ExternalMapping; ref != nil {
		b = appendBytes(b, resFieldExtMapping, marshalRef(ref))
	}
	if r.HasContextID {
		b = appendVarint(b, resFieldContextID, uint64(r.ContextID))
		b = appendVarint(b, resFieldHasContextID, 1)
	}
	return b
}

func marshalRef(ref *ExternalRef) []byte {
	var m []byte
	m = appendVarint(m, refFieldContext, uint64(ref.ContextID))
	return appendVarint(m, refFieldBlobID, ref.BlobID)
}

func unmarshalRef(b []byte) (*ExternalRef, error) {
	ref := &ExternalRef{}
	err := walk(b, func(num protowire.Number, v uint64, _ []byte) error {
		switch num {
		case refFieldContext:
			ref.ContextID = uint32(v)
		case refFieldBlobID:
			ref.BlobID = v
		}
		return nil
	})
	return ref, err
}

// UnmarshalResource decodes a resource record.
func UnmarshalResource(b []byte) (*ResourceRecord, error) {
	r := &ResourceRecord{}
	var haveID, haveType bool
	err := walk(b, func(num protowire.Number, v uint64, raw []byte) error {
		var err error
		switch num {
		case resFieldID:
			r.ID, haveID = uint32(v), true
		case resFieldType:
			r.Type, haveType = uint32(v), true
		case resFieldCreateArgs:
			a := &CreateArgs{}
			fields := []*uint32{&a.Handle, &a.Target, &a.Format, &a.Bind, &a.Width, &a.Height, &a.Depth, &a.ArraySize, &a.LastLevel, &a.NrSamples, &a.Flags}
			err = walk(raw, func(num protowire.Number, v uint64, _ []byte) error {
				if i := int(num) - 1; i >= 0 && i < len(fields) {
					*fields[i] = uint32(v)
				}
				return nil
			})
			r.CreateArgs = a
		case resFieldBlobArgs:
			a := &CreateBlobArgs{}
			err = walk(raw, func(num protowire.Number, v uint64, _ []byte) error {
				switch num {
				case blobFieldMem:
					a.Mem = uint32(v)
				case blobFieldFlags:
					a.Flags = uint32(v)
				case blobFieldID:
					a.BlobID = v
				case blobFieldSize:
					a.Size = v
				}
				return nil
			})
			r.CreateBlobArgs = a
		case resFieldRingBlob:
			s := &ringblob.Snapshot{}
			err = walk(raw, func(num protowire.Number, v uint64, raw []byte) error {
				switch num {
				case ringFieldID:
					s.ID = uint32(v)
				case ringFieldSize:
					s.Size = v
				case ringFieldAlign:
					s.Alignment = v
				case ringFieldType:
					s.Type = ringblob.Type(v)
				case ringFieldMemory:
					s.Memory = append([]byte(nil), raw...)
				}
				return nil
			})
			r.RingBlob = s
		case resFieldExtDesc:
			r.ExternalDescriptor, err = unmarshalRef(raw)
		case resFieldExtMapping:
			r.ExternalMapping, err = unmarshalRef(raw)
		case resFieldContextID:
			r.ContextID = uint32(v)
		case resFieldHasContextID:
			r.HasContextID = v != 0
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !haveID || !haveType {
		return nil, errors.Wrap(errMalformed, "resource record is missing its id or type")
	}
	return r, nil
}

// walk calls fn for every field of a message. Varint fields pass their value in v;
// length delimited fields pass their contents in raw.
func walk(b []byte, fn func(num protowire.Number, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrapf(errMalformed, "tag: %v", protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v   uint64
			raw []byte
		)
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrapf(errMalformed, "field %d: %v", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, v, raw); err != nil {
			return err
		}
	}
	return nil
}
