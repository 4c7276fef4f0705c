package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server error codes after which a stored resume token can never be used again.
const (
	codeChangeStreamFatal       = 280
	codeChangeStreamHistoryLost = 286
)

// emptyDocument stands in for a state the server could not supply (no pre-image
// on update, or the document vanished before the post-image lookup).
var emptyDocument = bson.Raw{5, 0, 0, 0, 0}

// CheckpointStore persists change-stream resume tokens.
type CheckpointStore interface {
	Load(ctx context.Context, stream string) (bson.Raw, error)
	Save(ctx context.Context, stream string, token bson.Raw) error
	Clear(ctx context.Context, stream string) error
}

// Source maps one collection's documents onto logical document paths.
type Source struct {
	Collection string
	// Path returns the document path for doc, or false if none can be derived.
	Path func(doc bson.Raw, id string) (string, bool)
}

// Subcollection describes a child collection that stores its parent id in a field,
// e.g. comments{postId} exposed as posts/{postId}/comments/{id}.
func Subcollection(collection, parent, parentField string) Source {
	return Source{
		Collection: collection,
		Path: func(doc bson.Raw, id string) (string, bool) {
			parentID, ok := doc.Lookup(parentField).StringValueOK()
			if !ok || parentID == "" || id == "" {
				return "", false
			}
			return parent + "/" + parentID + "/" + collection + "/" + id, true
		},
	}
}

type WatcherOptions struct {
	// Name keys the checkpoint; two watchers with the same name share a position.
	Name    string
	Sources []Source
	// Buckets are GridFS bucket names whose finished uploads become ObjectEvents.
	Buckets []string
	Timeout time.Duration
}

// Watcher tails a database change stream and feeds the registry. Checkpoints are
// saved after dispatch, so a crash re-delivers the in-flight event.
type Watcher struct {
	db          *mongo.Database
	registry    *Registry
	checkpoints CheckpointStore
	opts        WatcherOptions
	sources     map[string]Source
	buckets     map[string]string
}

func NewWatcher(db *mongo.Database, registry *Registry, checkpoints CheckpointStore, opts WatcherOptions) *Watcher {
	if opts.Name == "" {
		opts.Name = "triggers"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	w := &Watcher{
		db:          db,
		registry:    registry,
		checkpoints: checkpoints,
		opts:        opts,
		sources:     make(map[string]Source),
		buckets:     make(map[string]string),
	}
	for _, s := range opts.Sources {
		w.sources[s.Collection] = s
	}
	for _, b := range opts.Buckets {
		w.buckets[b+".files"] = b
	}
	return w
}

// Run watches until ctx is cancelled, reconnecting with capped backoff.
func (w *Watcher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isUnresumable(err) {
			logrus.WithError(err).Error("Change stream position lost, restarting from now; events in the gap are missed")
			if cerr := w.checkpoints.Clear(ctx, w.opts.Name); cerr != nil {
				logrus.WithError(cerr).Error("Failed to clear change stream checkpoint")
			}
		} else {
			logrus.WithError(err).Warnf("Change stream interrupted, reconnecting in %s", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (w *Watcher) watch(ctx context.Context) error {
	token, err := w.checkpoints.Load(ctx, w.opts.Name)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	csOpts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetFullDocumentBeforeChange(options.WhenAvailable)
	if token != nil {
		csOpts.SetStartAfter(token)
	}

	cs, err := w.db.Watch(ctx, w.pipeline(), csOpts)
	if err != nil {
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	defer cs.Close(context.Background())

	logrus.WithFields(logrus.Fields{
		"stream":  w.opts.Name,
		"resumed": token != nil,
	}).Info("Change stream opened")

	for cs.Next(ctx) {
		var ev changeEvent
		if err := cs.Decode(&ev); err != nil {
			logrus.WithError(err).Error("Failed to decode change event")
		} else {
			w.handle(ctx, ev)
		}
		if err := w.checkpoints.Save(ctx, w.opts.Name, cs.ResumeToken()); err != nil {
			logrus.WithError(err).Warn("Failed to save change stream checkpoint")
		}
	}
	return cs.Err()
}

func (w *Watcher) pipeline() mongo.Pipeline {
	colls := bson.A{}
	for c := range w.sources {
		colls = append(colls, c)
	}
	for c := range w.buckets {
		colls = append(colls, c)
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "ns.db", Value: w.db.Name()},
			{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: colls}}},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}}},
		}}},
	}
}

type changeEvent struct {
	ID            bson.Raw `bson:"_id"`
	OperationType string   `bson:"operationType"`
	NS            struct {
		DB   string `bson:"db"`
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID bson.RawValue `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument             bson.Raw `bson:"fullDocument"`
	FullDocumentBeforeChange bson.Raw `bson:"fullDocumentBeforeChange"`
}

func (w *Watcher) handle(ctx context.Context, ev changeEvent) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	defer cancel()

	if bucket, ok := w.buckets[ev.NS.Coll]; ok {
		if ev.OperationType != "insert" {
			return
		}
		obj := objectEventFromFile(bucket, ev.FullDocument)
		// Failures are already logged per handler.
		_ = w.registry.DispatchObject(ctx, obj)
		return
	}

	src, ok := w.sources[ev.NS.Coll]
	if !ok {
		return
	}
	ch, ok := changeFromEvent(src, ev)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"collection": ev.NS.Coll,
			"operation":  ev.OperationType,
		}).Warn("Skipping change without enough state to derive its path")
		return
	}
	_ = w.registry.DispatchDocument(ctx, ch)
}

func changeFromEvent(src Source, ev changeEvent) (Change, bool) {
	id := rawID(ev.DocumentKey.ID)
	ch := Change{ID: tokenString(ev.ID)}

	switch ev.OperationType {
	case "insert":
		ch.After = ev.FullDocument
	case "delete":
		ch.Before = ev.FullDocumentBeforeChange
	case "update", "replace":
		ch.Before, ch.After = ev.FullDocumentBeforeChange, ev.FullDocument
		if ch.Before == nil {
			ch.Before = emptyDocument
		}
		if ch.After == nil {
			ch.After = emptyDocument
		}
	default:
		return Change{}, false
	}

	for _, doc := range []bson.Raw{ch.After, ch.Before} {
		if doc == nil {
			continue
		}
		if p, ok := src.Path(doc, id); ok {
			ch.Path = p
			return ch, true
		}
	}
	return Change{}, false
}

func objectEventFromFile(bucket string, file bson.Raw) ObjectEvent {
	ev := ObjectEvent{
		Bucket:   bucket,
		ID:       rawID(file.Lookup("_id")),
		Metadata: make(map[string]string),
	}
	ev.Name, _ = file.Lookup("filename").StringValueOK()

	if meta, ok := file.Lookup("metadata").DocumentOK(); ok {
		elems, _ := meta.Elements()
		for _, e := range elems {
			if s, ok := e.Value().StringValueOK(); ok {
				ev.Metadata[e.Key()] = s
			}
		}
	}
	ev.ContentType = ev.Metadata["contentType"]
	return ev
}

func rawID(v bson.RawValue) string {
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	}
	return ""
}

func tokenString(token bson.Raw) string {
	if token == nil {
		return ""
	}
	if s, ok := token.Lookup("_data").StringValueOK(); ok {
		return s
	}
	return token.String()
}

func isUnresumable(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(codeChangeStreamHistoryLost) || se.HasErrorCode(codeChangeStreamFatal)
}
