// Package objectstore provides the blob stores behind the content cache: a NATS JetStream
// object store, an S3 bucket and a single-file SQLite database. Each implements core.ObjectStore
// and records a BLAKE3 digest of every object it stores.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/scripture-service/internal/core"
)

const headerContentType = "Content-Type"

// NatsObjectStore implements the core.ObjectStore interface using NATS JetStream.
type NatsObjectStore struct {
	bucket        string
	publicBaseURL string
	store         nats.ObjectStore
}

// New creates and initializes a new NatsObjectStore. publicBaseURL is the address the bucket
// is served from; when empty, URL returns nats:// addresses.
func New(jetstreamContext nats.JetStreamContext, bucketName, publicBaseURL string) (*NatsObjectStore, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Scripture text and audio cache for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) || errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
			}
		} else {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket:        bucketName,
		publicBaseURL: publicBaseURL,
		store:         store,
	}, nil
}

// Exists reports whether key is present in the bucket.
func (n *NatsObjectStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := n.store.GetInfo(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("%w: failed to stat object '%s' in bucket '%s': %w", core.ErrStorage, key, n.bucket, err)
	}

	return true, nil
}

// Download retrieves an object from the NATS object store.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get object '%s' from bucket '%s': %w", core.ErrStorage, key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read object '%s': %w", core.ErrStorage, key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("%w: failed to close object '%s': %w", core.ErrStorage, key, closeErr)
	}

	return data, nil
}

// Upload saves an object to the NATS object store, replacing any previous version.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nats.Header{headerContentType: []string{contentType}},
		Metadata:    map[string]string{metadataDigest: Digest(data)},
		Opts:        nil,
	}, reader)
	if err != nil {
		return fmt.Errorf("%w: failed to put object '%s' to bucket '%s': %w", core.ErrStorage, key, n.bucket, err)
	}

	return nil
}

// URL returns the public address of key.
func (n *NatsObjectStore) URL(key string) string {
	return publicURL(n.publicBaseURL, "nats://"+n.bucket, key)
}
