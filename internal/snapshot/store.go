package snapshot

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/Microsoft/virtiogpu/internal/errdefs"
	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/logfields"
)

// FileName is the name of the database inside the snapshot directory.
const FileName = "snapshot.bin"

// SchemaVersion is the version written into every snapshot. Snapshots with a different
// major version cannot be restored.
var SchemaVersion = semver.MustParse("1.0.0")

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrKeyNotFound    = errors.New("key does not exist")
)

// Store is an open snapshot database.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the snapshot database in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errdefs.InvalidArgumentf("snapshot directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create snapshot directory %s", dir)
	}
	p := filepath.Join(dir, FileName)
	db, err := bolt.Open(p, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot database %s", p)
	}
	return &Store{db: db, path: p}, nil
}

// OpenReadOnly opens an existing snapshot database in dir without modifying it.
func OpenReadOnly(dir string) (*Store, error) {
	p := filepath.Join(dir, FileName)
	if _, err := os.Stat(p); err != nil {
		return nil, errors.Wrapf(err, "stat snapshot database")
	}
	db, err := bolt.Open(p, 0o400, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot database %s", p)
	}
	return &Store{db: db, path: p}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

func idKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, id)
}

type encoded struct {
	key, value []byte
}

// Save replaces the stored tables with t.
func (s *Store) Save(ctx context.Context, t *Tables) error {
	ctxs := make([]encoded, len(t.Contexts))
	ress := make([]encoded, len(t.Resources))

	// Ring blob records carry whole blob copies, so encode in parallel.
	var g errgroup.Group
	for i, c := range t.Contexts {
		g.Go(func() error {
			ctxs[i] = encoded{key: idKey(c.ID), value: MarshalContext(c)}
			return nil
		})
	}
	for i, r := range t.Resources {
		g.Go(func() error {
			ress[i] = encoded{key: idKey(r.ID), value: MarshalResource(r)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketKeyVersion) != nil {
			if err := tx.DeleteBucket(bucketKeyVersion); err != nil {
				return err
			}
		}
		meta, err := createBucketIfNotExists(tx, bucketKeyVersion, bucketKeyMeta)
		if err != nil {
			return err
		}
		if err := meta.Put(keySchemaVersion, []byte(SchemaVersion.String())); err != nil {
			return err
		}
		if err := putAll(tx, bucketKeyContexts, ctxs); err != nil {
			return err
		}
		if err := putAll(tx, bucketKeyResources, ress); err != nil {
			return err
		}
		rb, err := createBucketIfNotExists(tx, bucketKeyVersion, bucketKeyRenderer)
		if err != nil {
			return err
		}
		return rb.Put(keyRendererState, t.Renderer)
	})
	if err != nil {
		return errors.Wrapf(err, "write snapshot %s", s.path)
	}

	log.G(ctx).WithFields(logrus.Fields{
		logfields.Path:  s.path,
		"contexts":      len(ctxs),
		"resources":     len(ress),
		logfields.Bytes: len(t.Renderer),
	}).Debug("snapshot saved")
	return nil
}

func putAll(tx *bolt.Tx, bucket []byte, records []encoded) error {
	bkt, err := createBucketIfNotExists(tx, bucketKeyVersion, bucket)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := bkt.Put(r.key, r.value); err != nil {
			return err
		}
	}
	return nil
}

// Version returns the schema version the snapshot was written with.
func (s *Store) Version() (semver.Version, error) {
	var v semver.Version
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := getBucket(tx, bucketKeyVersion, bucketKeyMeta)
		if meta == nil {
			return errors.Wrapf(ErrBucketNotFound, "snapshot meta bucket %s", bucketKeyMeta)
		}
		raw := meta.Get(keySchemaVersion)
		if raw == nil {
			return errors.Wrapf(ErrKeyNotFound, "snapshot schema version")
		}
		var err error
		v, err = semver.Parse(string(raw))
		return errors.Wrapf(err, "snapshot schema version %q", raw)
	})
	return v, err
}

// Load reads the stored tables. Every record must decode for the load to succeed.
func (s *Store) Load(ctx context.Context) (*Tables, error) {
	t := &Tables{}
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := getBucket(tx, bucketKeyVersion, bucketKeyMeta)
		if meta == nil {
			return errors.Wrapf(ErrBucketNotFound, "snapshot meta bucket %s", bucketKeyMeta)
		}
		raw := meta.Get(keySchemaVersion)
		if raw == nil {
			return errors.Wrapf(ErrKeyNotFound, "snapshot schema version")
		}
		v, err := semver.Parse(string(raw))
		if err != nil {
			return errors.Wrapf(err, "snapshot schema version %q", raw)
		}
		if v.Major != SchemaVersion.Major {
			return errdefs.InvalidArgumentf("snapshot schema %s is incompatible with %s", v, SchemaVersion)
		}

		if bkt := getBucket(tx, bucketKeyVersion, bucketKeyContexts); bkt != nil {
			if err := bkt.ForEach(func(k, v []byte) error {
				c, err := UnmarshalContext(v)
				if err != nil {
					return errors.Wrapf(err, "context %x", k)
				}
				t.Contexts = append(t.Contexts, c)
				return nil
			}); err != nil {
				return err
			}
		}
		if bkt := getBucket(tx, bucketKeyVersion, bucketKeyResources); bkt != nil {
			if err := bkt.ForEach(func(k, v []byte) error {
				r, err := UnmarshalResource(v)
				if err != nil {
					return errors.Wrapf(err, "resource %x", k)
				}
				t.Resources = append(t.Resources, r)
				return nil
			}); err != nil {
				return err
			}
		}
		if bkt := getBucket(tx, bucketKeyVersion, bucketKeyRenderer); bkt != nil {
			// Values are only valid for the life of the transaction.
			t.Renderer = append([]byte(nil), bkt.Get(keyRendererState)...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshot %s", s.path)
	}

	log.G(ctx).WithFields(logrus.Fields{
		logfields.Path: s.path,
		"contexts":     len(t.Contexts),
		"resources":    len(t.Resources),
	}).Debug("snapshot loaded")
	return t, nil
}
