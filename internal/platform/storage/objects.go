package storage

import (
	"context"
	"errors"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ErrObjectNotFound is returned when the referenced object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// Objects provides direct object operations against Cloud Storage, used by
// seller file management alongside the signed-URL client.
type Objects struct {
	client *gcs.Client
}

// NewObjects constructs an Objects helper backed by the provided client.
func NewObjects(client *gcs.Client) (*Objects, error) {
	if client == nil {
		return nil, errors.New("storage objects: client is required")
	}
	return &Objects{client: client}, nil
}

// Exists reports whether the object is present in the bucket.
func (o *Objects) Exists(ctx context.Context, bucket, object string) (bool, error) {
	ref, err := o.ref(bucket, object)
	if err != nil {
		return false, err
	}
	_, err = ref.Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the object. Deleting an absent object is not an error.
func (o *Objects) Delete(ctx context.Context, bucket, object string) error {
	ref, err := o.ref(bucket, object)
	if err != nil {
		return err
	}
	err = ref.Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// Copy duplicates an object between locations, used when a seller republishes
// a file under a new product.
func (o *Objects) Copy(ctx context.Context, sourceBucket, sourceObject, destBucket, destObject string) error {
	src, err := o.ref(sourceBucket, sourceObject)
	if err != nil {
		return err
	}
	dst, err := o.ref(destBucket, destObject)
	if err != nil {
		return err
	}
	if sourceBucket == destBucket && sourceObject == destObject {
		return nil
	}
	_, err = dst.CopierFrom(src).Run(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	return err
}

func (o *Objects) ref(bucket, object string) (*gcs.ObjectHandle, error) {
	if o == nil || o.client == nil {
		return nil, errors.New("storage objects: client is not initialised")
	}
	b := strings.TrimSpace(bucket)
	obj := strings.TrimSpace(object)
	if b == "" || obj == "" {
		return nil, errors.New("storage objects: bucket and object are required")
	}
	return o.client.Bucket(b).Object(obj), nil
}
