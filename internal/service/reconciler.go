package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jjiill888/quik/internal/model"
	"github.com/jjiill888/quik/internal/repo"
	"github.com/jjiill888/quik/internal/store"
)

// SendRequest is one physical delivery handed to the transport.
type SendRequest struct {
	SubscriptionID int
	ThreadID       int64
	Recipients     []string
	Body           string
	Attachments    []string
}

// SendClient is the collaborator that physically sends a message.
type SendClient interface {
	Send(ctx context.Context, req SendRequest) error
}

// Reconciler runs the fire-time state machine: when a message's
// wake-up arrives, it dispatches the sends and then finalizes the
// message as completed (grouped) or deleted (ungrouped).
type Reconciler struct {
	messages repo.ScheduledMessageRepository
	threads  repo.ThreadRepository
	client   SendClient
	now      func() time.Time
}

func NewReconciler(messages repo.ScheduledMessageRepository, threads repo.ThreadRepository, client SendClient) *Reconciler {
	return &Reconciler{
		messages: messages,
		threads:  threads,
		client:   client,
		now:      time.Now,
	}
}

// OnFire handles one wake-up for the given message id. It is safe
// under duplicate fire signals: an absent message is a no-op, and a
// message that already completed is not re-sent and keeps its original
// completedAt.
func (r *Reconciler) OnFire(ctx context.Context, id int64) error {
	msg, err := r.messages.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("fire for absent message, already handled", "id", id)
		return nil
	}
	if err != nil {
		return err
	}
	if msg.Completed {
		slog.Debug("fire for completed message, skipping", "id", id)
		return nil
	}

	requests := buildSendRequests(msg)

	// Every request is dispatched; individual failures are logged and
	// never block the others or the finalizing transition below.
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		req := req
		g.Go(func() error {
			threadID, err := r.threads.ResolveOrCreate(gctx, req.Recipients)
			if err != nil {
				slog.Warn("thread resolution failed, sending without thread",
					"id", id, "error", err)
			}
			req.ThreadID = threadID

			if err := r.client.Send(gctx, req); err != nil {
				failed.Add(1)
				slog.Warn("send failed", "id", id, "recipients", len(req.Recipients), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		slog.Warn("some sends failed", "id", id, "failed", n, "total", len(requests))
	}

	// Re-load to finalize against the latest persisted state. The
	// message may have been deleted while sends were in flight.
	msg, err = r.messages.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if msg.Grouped() {
		if err := r.messages.MarkCompleted(ctx, id, r.now().UnixMilli()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		slog.Info("scheduled message completed", "id", id, "group", msg.GroupID)
		return nil
	}

	if err := r.messages.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	slog.Info("scheduled message sent and removed", "id", id)
	return nil
}

// buildSendRequests splits a message into per-recipient deliveries
// unless it is flagged to go out as one combined message.
func buildSendRequests(msg model.ScheduledMessage) []SendRequest {
	if msg.SendAsGroup || len(msg.Recipients) <= 1 {
		return []SendRequest{{
			SubscriptionID: msg.SubscriptionID,
			Recipients:     msg.Recipients,
			Body:           msg.Body,
			Attachments:    msg.Attachments,
		}}
	}

	requests := make([]SendRequest, 0, len(msg.Recipients))
	for _, recipient := range msg.Recipients {
		requests = append(requests, SendRequest{
			SubscriptionID: msg.SubscriptionID,
			Recipients:     []string{recipient},
			Body:           msg.Body,
			Attachments:    msg.Attachments,
		})
	}
	return requests
}
