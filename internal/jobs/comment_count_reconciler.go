package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Dias221467/closure-backend/internal/repository"
	"github.com/sirupsen/logrus"
)

type CommentCountLister interface {
	ListCommentCounts(ctx context.Context) ([]repository.CommentCount, error)
	GetCommentsCount(ctx context.Context, postID string) (int, error)
	CompareAndSetCommentsCount(ctx context.Context, postID string, expected, actual int) (bool, error)
}

type CommentCounter interface {
	CountByPost(ctx context.Context, postID string) (int, error)
	LatestCommentAt(ctx context.Context, postID string) (time.Time, error)
}

// CommentCountReconciler repairs commentsCount values that drifted because an
// increment was lost for good (for example after change-stream history expired).
//
// A counter that disagrees with the live count may just be waiting for a change
// event still in flight, so a post is only repaired when the disagreement holds
// across the Settle window and no comment was written within that window.
type CommentCountReconciler struct {
	Posts    CommentCountLister
	Comments CommentCounter
	Settle   time.Duration

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewCommentCountReconciler creates a new instance of CommentCountReconciler.
// settle should exceed the time the trigger watcher needs to apply an event.
func NewCommentCountReconciler(posts CommentCountLister, comments CommentCounter, settle time.Duration) *CommentCountReconciler {
	return &CommentCountReconciler{
		Posts:    posts,
		Comments: comments,
		Settle:   settle,
		now:      time.Now,
		wait:     sleep,
	}
}

type drift struct {
	postID string
	stored int
	live   int
}

// Run recounts the comments of every post and overwrites counters that stayed
// wrong for the whole settle window. It returns how many posts were repaired.
// Posts that are still moving are left to the live reactor and the next run.
func (r *CommentCountReconciler) Run(ctx context.Context) (int, error) {
	counts, err := r.Posts.ListCommentCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list comment counts: %w", err)
	}

	var suspects []drift
	for _, c := range counts {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		live, err := r.Comments.CountByPost(ctx, c.PostID)
		if err != nil {
			logrus.WithError(err).WithField("postID", c.PostID).Warn("Failed to recount comments")
			continue
		}
		if live != c.Count {
			suspects = append(suspects, drift{postID: c.PostID, stored: c.Count, live: live})
		}
	}

	repaired := 0
	if len(suspects) > 0 {
		if err := r.wait(ctx, r.Settle); err != nil {
			return 0, err
		}
		for _, d := range suspects {
			if err := ctx.Err(); err != nil {
				return repaired, err
			}
			if r.repair(ctx, d) {
				repaired++
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"posts":    len(counts),
		"suspects": len(suspects),
		"repaired": repaired,
	}).Info("Comment count reconciliation completed")
	return repaired, nil
}

// repair re-reads both sides after the settle window and writes only if nothing moved.
func (r *CommentCountReconciler) repair(ctx context.Context, d drift) bool {
	log := logrus.WithFields(logrus.Fields{"postID": d.postID, "stored": d.stored, "actual": d.live})

	stored, err := r.Posts.GetCommentsCount(ctx, d.postID)
	if err != nil {
		log.WithError(err).Warn("Failed to re-read comments count")
		return false
	}
	live, err := r.Comments.CountByPost(ctx, d.postID)
	if err != nil {
		log.WithError(err).Warn("Failed to recount comments")
		return false
	}
	if stored != d.stored || live != d.live {
		log.Debug("Comments changed during reconciliation, skipping")
		return false
	}

	latest, err := r.Comments.LatestCommentAt(ctx, d.postID)
	if err != nil {
		log.WithError(err).Warn("Failed to read latest comment time")
		return false
	}
	if !latest.IsZero() && r.now().Sub(latest) < r.Settle {
		log.Debug("Recent comment activity, skipping")
		return false
	}

	ok, err := r.Posts.CompareAndSetCommentsCount(ctx, d.postID, d.stored, d.live)
	if err != nil {
		log.WithError(err).Warn("Failed to repair comments count")
		return false
	}
	if !ok {
		log.Debug("Comments count changed during reconciliation, skipping")
		return false
	}

	log.Warn("Repaired drifted comments count")
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
