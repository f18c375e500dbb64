package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hawkview/internal/models"
)

const (
	forwardTimeout = 10 * time.Second
	storeTimeout   = 5 * time.Second
)

// Sink receives localized failures. Reporting never fails and never blocks on
// delivery to external channels.
type Sink interface {
	Report(ctx context.Context, source string, err error, msg string)
}

type SinkFunc func(ctx context.Context, source string, err error, msg string)

func (f SinkFunc) Report(ctx context.Context, source string, err error, msg string) {
	f(ctx, source, err, msg)
}

type Store interface {
	InsertNotification(ctx context.Context, n models.Notification) error
}

type Forwarder interface {
	Enabled() bool
	Forward(ctx context.Context, n models.Notification) error
}

// Journal logs every notification, records it in the store and forwards
// errors to the optional forwarder.
type Journal struct {
	store Store
	fwd   Forwarder
	log   *slog.Logger
	now   func() time.Time
}

func NewJournal(store Store, fwd Forwarder, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: store, fwd: fwd, log: logger, now: time.Now}
}

func (j *Journal) Report(ctx context.Context, source string, err error, msg string) {
	n := models.Notification{Level: models.LevelError, Source: source, Message: msg}
	if err != nil {
		n.Cause = err.Error()
	}
	j.Record(ctx, n)
}

// Record stores a notification, filling in its id and timestamp.
func (j *Journal) Record(ctx context.Context, n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.TS.IsZero() {
		n.TS = j.now().UTC()
	}
	if n.Level == models.LevelError {
		j.log.Warn(n.Message, "source", n.Source, "cause", n.Cause)
	} else {
		j.log.Info(n.Message, "source", n.Source)
	}
	if j.store != nil {
		// Failures are often reported because the request context ended.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		if err := j.store.InsertNotification(sctx, n); err != nil {
			j.log.Error("record notification", "err", err, "source", n.Source)
		}
		cancel()
	}
	if n.Level == models.LevelError && j.fwd != nil && j.fwd.Enabled() {
		go j.forward(context.WithoutCancel(ctx), n)
	}
	return n
}

func (j *Journal) forward(parent context.Context, n models.Notification) {
	ctx, cancel := context.WithTimeout(parent, forwardTimeout)
	defer cancel()
	if err := j.fwd.Forward(ctx, n); err != nil {
		j.log.Warn("forward notification failed", "err", err, "id", n.ID)
	}
}
