package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type documentRoute struct {
	name     string
	pattern  []string
	on       EventType
	handler  DocumentHandler
	rawShape string
}

type objectRoute struct {
	name    string
	bucket  string
	handler ObjectHandler
}

// Registry is the dispatch table mapping (path pattern, event type) to handlers.
// Routes are registered at startup; dispatching is safe for concurrent use once
// registration is done.
type Registry struct {
	documents []documentRoute
	objects   []objectRoute
}

func NewRegistry() *Registry {
	return &Registry{}
}

// OnDocument registers h for changes whose path matches pattern, e.g.
// "posts/{postId}/comments/{commentId}".
func (r *Registry) OnDocument(name, pattern string, on EventType, h DocumentHandler) {
	r.documents = append(r.documents, documentRoute{
		name:     name,
		pattern:  splitPath(pattern),
		on:       on,
		handler:  h,
		rawShape: pattern,
	})
}

// OnObjectFinalized registers h for completed uploads in bucket.
func (r *Registry) OnObjectFinalized(name, bucket string, h ObjectHandler) {
	r.objects = append(r.objects, objectRoute{name: name, bucket: bucket, handler: h})
}

// Routes describes the table, one line per route.
func (r *Registry) Routes() []string {
	out := make([]string, 0, len(r.documents)+len(r.objects))
	for _, rt := range r.documents {
		out = append(out, fmt.Sprintf("%s: %s %s", rt.name, rt.on, rt.rawShape))
	}
	for _, rt := range r.objects {
		out = append(out, fmt.Sprintf("%s: finalize %s", rt.name, rt.bucket))
	}
	return out
}

// DispatchDocument runs every route matching the change. Handlers run
// concurrently and independently; the returned error joins all handler failures.
func (r *Registry) DispatchDocument(ctx context.Context, ch Change) error {
	kind := ch.Kind()
	if kind == "" {
		return nil
	}

	var g errgroup.Group
	errs := make([]error, len(r.documents))
	segments := splitPath(ch.Path)

	for i, rt := range r.documents {
		if rt.on != Write && rt.on != kind {
			continue
		}
		params, ok := match(rt.pattern, segments)
		if !ok {
			continue
		}
		i, rt := i, rt
		ev := DocumentEvent{Change: ch, Params: params}
		g.Go(func() error {
			errs[i] = run(ctx, rt.name, logrus.Fields{"path": ch.Path, "event": kind, "eventId": ch.ID}, func(ctx context.Context) error {
				return rt.handler(ctx, ev)
			})
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// DispatchObject runs every finalize route registered for the event's bucket.
func (r *Registry) DispatchObject(ctx context.Context, ev ObjectEvent) error {
	var g errgroup.Group
	errs := make([]error, len(r.objects))

	for i, rt := range r.objects {
		if rt.bucket != ev.Bucket {
			continue
		}
		i, rt := i, rt
		g.Go(func() error {
			errs[i] = run(ctx, rt.name, logrus.Fields{"bucket": ev.Bucket, "object": ev.Name}, func(ctx context.Context) error {
				return rt.handler(ctx, ev)
			})
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func run(ctx context.Context, name string, fields logrus.Fields, fn func(context.Context) error) (err error) {
	log := logrus.WithFields(fields).WithField("handler", name)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %s panicked: %v", name, p)
		}
		if err != nil {
			log.WithError(err).Error("Trigger handler failed")
			err = fmt.Errorf("%s: %w", name, err)
			return
		}
		log.WithField("duration", time.Since(start).String()).Debug("Trigger handler finished")
	}()

	return fn(ctx)
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func match(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if segments[i] == "" {
				return nil, false
			}
			params[seg[1:len(seg)-1]] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, false
		}
	}
	return params, true
}
