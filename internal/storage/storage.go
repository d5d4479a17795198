package storage

import (
	"context"
	"io"
	"time"
)

// Object describes a payload to create in remote storage.
type Object struct {
	Name        string
	ParentID    string
	ContentType string
	// Size is the payload length in bytes, or -1 when unknown.
	Size int64
}

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContentType  string    `json:"content_type,omitempty"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time,omitempty"`
}

// ObjectStorage captures the single operation the transfer pipeline needs:
// create one object under a parent folder and return its remote identifier.
// A call either creates the object or fails; partial objects are not modeled.
type ObjectStorage interface {
	CreateObject(ctx context.Context, obj Object, body io.Reader) (string, error)
}

// Lister is implemented by backends that can enumerate a folder.
type Lister interface {
	ListObjects(ctx context.Context, parentID string) ([]ObjectInfo, error)
}

// joinKey builds an object key from a parent prefix and a name.
func joinKey(parentID, name string) string {
	if parentID == "" {
		return name
	}
	for len(parentID) > 0 && parentID[len(parentID)-1] == '/' {
		parentID = parentID[:len(parentID)-1]
	}
	return parentID + "/" + name
}
