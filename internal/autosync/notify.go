package autosync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextsync/internal/logging"
)

// Notifier presents sync outcomes to the user. Wording is left to the
// implementation.
type Notifier interface {
	NotifyUpdates(ctx context.Context, n UpdateNotice)
	NotifyConflict(ctx context.Context, n ConflictNotice)
}

// LogNotifier writes notices to the log.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) NotifyUpdates(ctx context.Context, n UpdateNotice) {
	l.logger.Info(ctx, n.Message(),
		zap.Int("count", n.Count),
		zap.Strings("projects", n.ProjectNames),
		zap.Bool("auto_merged", n.AutoMerged),
	)
}

func (l *LogNotifier) NotifyConflict(ctx context.Context, n ConflictNotice) {
	l.logger.Error(ctx, n.Message(), zap.String("project", n.Project), zap.Error(n.Err))
}

// MultiNotifier fans notices out to several notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyUpdates(ctx context.Context, n UpdateNotice) {
	for _, notifier := range m {
		notifier.NotifyUpdates(ctx, n)
	}
}

func (m MultiNotifier) NotifyConflict(ctx context.Context, n ConflictNotice) {
	for _, notifier := range m {
		notifier.NotifyConflict(ctx, n)
	}
}

// Notice kinds.
const (
	NoticeUpdates  = "updates"
	NoticeConflict = "conflict"
)

// Notice is a recorded notification as served to polling clients.
type Notice struct {
	Seq      uint64          `json:"seq"`
	Time     time.Time       `json:"time"`
	Kind     string          `json:"kind"`
	Message  string          `json:"message"`
	Update   *UpdateNotice   `json:"update,omitempty"`
	Conflict *ConflictNotice `json:"conflict,omitempty"`
	Error    string          `json:"error,omitempty"`
}

const defaultBacklog = 64

// Broadcaster keeps a bounded backlog of sequence-numbered notices for
// polling clients.
type Broadcaster struct {
	mu      sync.Mutex
	seq     uint64
	backlog []Notice
	limit   int
	now     func() time.Time
}

// NewBroadcaster creates a broadcaster retaining the last limit notices.
// A non-positive limit uses the default of 64.
func NewBroadcaster(limit int) *Broadcaster {
	if limit <= 0 {
		limit = defaultBacklog
	}
	return &Broadcaster{
		limit: limit,
		now:   time.Now,
	}
}

func (b *Broadcaster) NotifyUpdates(_ context.Context, n UpdateNotice) {
	b.publish(Notice{Kind: NoticeUpdates, Message: n.Message(), Update: &n})
}

func (b *Broadcaster) NotifyConflict(_ context.Context, n ConflictNotice) {
	notice := Notice{Kind: NoticeConflict, Message: n.Message(), Conflict: &n}
	if n.Err != nil {
		notice.Error = n.Err.Error()
	}
	b.publish(notice)
}

func (b *Broadcaster) publish(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	n.Seq = b.seq
	n.Time = b.now()

	b.backlog = append(b.backlog, n)
	if len(b.backlog) > b.limit {
		b.backlog = append([]Notice(nil), b.backlog[len(b.backlog)-b.limit:]...)
	}
}

// Since returns retained notices with Seq greater than seq, oldest first.
func (b *Broadcaster) Since(seq uint64) []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Notice, 0, len(b.backlog))
	for _, n := range b.backlog {
		if n.Seq > seq {
			out = append(out, n)
		}
	}
	return out
}
