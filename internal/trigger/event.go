package trigger

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// EventType selects which document changes a route reacts to.
type EventType string

const (
	Create EventType = "create"
	Update EventType = "update"
	Delete EventType = "delete"
	// Write matches creates, updates and deletes.
	Write EventType = "write"
)

// Change is one document write observed in the store. A nil Before means the
// document was created, a nil After means it was deleted.
type Change struct {
	ID     string
	Path   string
	Before bson.Raw
	After  bson.Raw
}

// Kind classifies the change. It returns "" for a change carrying neither state.
func (c Change) Kind() EventType {
	switch {
	case c.Before == nil && c.After != nil:
		return Create
	case c.Before != nil && c.After == nil:
		return Delete
	case c.Before != nil && c.After != nil:
		return Update
	}
	return ""
}

// DocumentEvent is what a document handler receives: the change plus the
// parameters captured from the route pattern.
type DocumentEvent struct {
	Change
	Params map[string]string
}

// ObjectEvent describes an object whose upload has completed.
type ObjectEvent struct {
	ID          string
	Bucket      string
	Name        string
	ContentType string
	Metadata    map[string]string
}

type DocumentHandler func(ctx context.Context, ev DocumentEvent) error

type ObjectHandler func(ctx context.Context, ev ObjectEvent) error
