package snapshot

import (
	bolt "go.etcd.io/bbolt"
)

const schemaBucket = "v1"

var (
	bucketKeyVersion = []byte(schemaBucket)

	bucketKeyMeta      = []byte("meta")
	bucketKeyContexts  = []byte("contexts")
	bucketKeyResources = []byte("resources")
	bucketKeyRenderer  = []byte("renderer")

	keySchemaVersion = []byte("version")
	keyRendererState = []byte("state")
)

// Below is the current database schema. This should be updated any time the schema is
// changed or updated. The bucket should be renamed if breaking changes are made.
//  └──v1                              - Schema bucket
//     ├──meta
//     │  └──version : <semver>        - Schema version of the records below
//     ├──contexts
//     │  └──<ctx id> : <record>       - Context record, big endian id key
//     ├──resources
//     │  └──<res id> : <record>       - Resource record, big endian id key
//     └──renderer
//        └──state : <bytes>           - Backend state

func getBucket(tx *bolt.Tx, keys ...[]byte) *bolt.Bucket {
	bkt := tx.Bucket(keys[0])

	for _, key := range keys[1:] {
		if bkt == nil {
			break
		}
		bkt = bkt.Bucket(key)
	}

	return bkt
}

func createBucketIfNotExists(tx *bolt.Tx, keys ...[]byte) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(keys[0])
	if err != nil {
		return nil, err
	}

	for _, key := range keys[1:] {
		bkt, err = bkt.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, err
		}
	}

	return bkt, nil
}
