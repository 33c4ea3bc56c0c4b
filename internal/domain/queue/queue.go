package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/chat"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/logging"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/monitoring"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/providers/generation"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/shared/id"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/shared/types"
)

// Admission rejections. Deterministic control decisions, not faults.
var (
	ErrQueueFull   = errors.New("queue full")
	ErrRateLimited = errors.New("rate limited")
)

// User-visible replies for admission and execution outcomes.
const (
	replyQueueFull   = "The request queue is full right now. Please try again in a bit."
	replyRateLimited = "Commands are coming in too fast. Please wait a few seconds and try again."
	replyFailed      = "Sorry, something went wrong while processing your request. Please try again later."
)

// searchPreamble flips the prompt for the search-variant command.
const searchPreamble = "Search for up-to-date information and answer: "

// Request is one admitted command. Consumed and discarded after a
// single execution attempt.
type Request struct {
	ID         id.RequestID
	OriginID   string
	GroupID    string
	GroupName  string
	Prompt     string
	Search     bool
	EnqueuedAt time.Time
}

// ChatClient is the driver subset the worker needs.
type ChatClient interface {
	FetchRecentMessages(ctx context.Context, chatID string, limit int) ([]chat.Message, error)
	ResolveDisplayName(ctx context.Context, userID string) (string, error)
	Reply(ctx context.Context, originID string, text string) error
}

// Generator is the downstream generation collaborator.
type Generator interface {
	Generate(ctx context.Context, req *generation.Request) (string, error)
}

// Config bounds admission and processing.
type Config struct {
	MaxSize            int
	MinCommandInterval time.Duration
	InterItemPause     time.Duration
	FetchLimit         int
	MaxCachedMessages  int
	MaxTrackedGroups   int
}

// Queue is the single-worker FIFO admission queue.
type Queue struct {
	cfg     Config
	chat    ChatClient
	gen     Generator
	cache   *GroupCache
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu           sync.Mutex
	items        []*Request
	processing   bool
	lastAdmitted time.Time

	wake chan struct{}
	now  func() time.Time
}

// New creates an admission queue. Run must be called for processing to
// start.
func New(cfg Config, chatClient ChatClient, gen Generator, logger *logging.Logger) *Queue {
	return &Queue{
		cfg:    cfg,
		chat:   chatClient,
		gen:    gen,
		cache:  NewGroupCache(cfg.MaxCachedMessages, cfg.MaxTrackedGroups),
		logger: logger,
		wake:   make(chan struct{}, 1),
		now:    time.Now,
	}
}

// WithMetrics attaches a metrics collector.
func (q *Queue) WithMetrics(m *monitoring.Metrics) *Queue {
	q.metrics = m
	return q
}

// Submit applies admission control and appends on acceptance.
// Admission order is registration order: ties between simultaneous
// submissions are broken by who takes the lock first.
func (q *Queue) Submit(cmd *chat.Command) (*Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if len(q.items) >= q.cfg.MaxSize {
		return nil, ErrQueueFull
	}
	if !q.lastAdmitted.IsZero() && now.Sub(q.lastAdmitted) < q.cfg.MinCommandInterval {
		return nil, ErrRateLimited
	}

	req := &Request{
		ID:         id.NewRequestID(),
		OriginID:   cmd.OriginID,
		GroupID:    cmd.GroupID,
		GroupName:  cmd.GroupName,
		Prompt:     cmd.Prompt,
		Search:     cmd.Search,
		EnqueuedAt: now,
	}
	q.items = append(q.items, req)
	q.lastAdmitted = now

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return req, nil
}

// Admit submits a command and reports rejections back to the
// originating chat. The admission decision is made synchronously in
// call order; rejection notices go out in the background so the
// caller's event loop stays live.
func (q *Queue) Admit(ctx context.Context, cmd chat.Command) error {
	req, err := q.Submit(&cmd)
	switch {
	case errors.Is(err, ErrQueueFull):
		q.recordAdmission("rejected_full")
		go q.replyBestEffort(ctx, cmd.OriginID, replyQueueFull)
		return err
	case errors.Is(err, ErrRateLimited):
		q.recordAdmission("rejected_rate")
		go q.replyBestEffort(ctx, cmd.OriginID, replyRateLimited)
		return err
	case err != nil:
		return err
	}

	q.recordAdmission("accepted")
	q.logger.Info("Command admitted",
		zap.String("request_id", req.ID.String()),
		zap.String("group", cmd.GroupName),
		zap.Bool("search", cmd.Search),
	)
	return nil
}

// Run drains the queue until the context ends. At most one item is in
// flight system-wide.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for q.processNext(ctx) {
			select {
			case <-time.After(q.cfg.InterItemPause):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Status reports queue state for the dashboard.
func (q *Queue) Status() types.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return types.QueueStatus{
		Depth:      len(q.items),
		MaxSize:    q.cfg.MaxSize,
		Processing: q.processing,
	}
}

// processNext handles the queue head. Returns false when the queue is
// empty and the worker should go idle.
func (q *Queue) processNext(ctx context.Context) bool {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.processing = false
		q.mu.Unlock()
		return false
	}
	item := q.items[0]
	depth := len(q.items)
	q.processing = true
	q.mu.Unlock()

	if depth > 1 {
		q.replyBestEffort(ctx, item.OriginID,
			fmt.Sprintf("Now processing your request (%d more waiting).", depth-1))
	}

	started := q.now()
	if err := q.execute(ctx, item); err != nil {
		q.logger.Warn("Request execution failed",
			zap.String("request_id", item.ID.String()),
			zap.String("group", item.GroupName),
			zap.Error(err),
		)
		q.replyBestEffort(ctx, item.OriginID, replyFailed)
		q.recordProcessed("error", q.now().Sub(started))
	} else {
		q.recordProcessed("ok", q.now().Sub(started))
	}

	// Exactly one attempt: the item leaves the queue on success and on
	// error alike.
	q.mu.Lock()
	q.items = q.items[1:]
	remaining := len(q.items)
	q.processing = remaining > 0
	q.mu.Unlock()
	return true
}

// execute runs one generation round trip for the item.
func (q *Queue) execute(ctx context.Context, item *Request) error {
	window, err := q.chat.FetchRecentMessages(ctx, item.GroupID, q.cfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch window: %w", err)
	}

	window = q.resolveNames(ctx, window)
	fresh, hadCache := q.cache.Diff(item.GroupID, window)

	prompt := item.Prompt
	if item.Search {
		prompt = searchPreamble + prompt
	}

	genReq := &generation.Request{
		Messages:  make([]generation.Message, 0, len(fresh)),
		Prompt:    prompt,
		GroupName: item.GroupName,
		CacheInfo: generation.CacheInfo{
			TotalMessages:    len(window),
			NewMessages:      len(fresh),
			HasCachedContext: hadCache,
		},
	}
	for _, msg := range fresh {
		genReq.Messages = append(genReq.Messages, generation.Message{
			Timestamp: msg.Timestamp,
			User:      msg.User,
			Message:   msg.Text,
			GroupName: item.GroupName,
		})
	}

	// The cache always tracks the freshest fetched tail, whatever the
	// generation call does next.
	defer q.cache.Update(item.GroupID, window)

	text, err := q.gen.Generate(ctx, genReq)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := q.chat.Reply(ctx, item.OriginID, text); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// resolveNames maps raw user IDs to display names, memoized per call.
// Resolution failures fall back to the raw ID.
func (q *Queue) resolveNames(ctx context.Context, window []chat.Message) []chat.Message {
	memo := make(map[string]string)
	out := make([]chat.Message, len(window))
	for i, msg := range window {
		name, ok := memo[msg.User]
		if !ok {
			resolved, err := q.chat.ResolveDisplayName(ctx, msg.User)
			if err != nil || resolved == "" {
				resolved = msg.User
			}
			memo[msg.User] = resolved
			name = resolved
		}
		out[i] = chat.Message{Timestamp: msg.Timestamp, User: name, Text: msg.Text}
	}
	return out
}

func (q *Queue) replyBestEffort(ctx context.Context, originID, text string) {
	if err := q.chat.Reply(ctx, originID, text); err != nil {
		q.logger.Warn("Failed to send queue notice",
			zap.String("origin", originID),
			zap.Error(err),
		)
	}
}

func (q *Queue) recordAdmission(outcome string) {
	if q.metrics != nil {
		q.metrics.QueueAdmissions.WithLabelValues(outcome).Inc()
		q.metrics.QueueDepth.Set(float64(q.Status().Depth))
	}
}

func (q *Queue) recordProcessed(outcome string, elapsed time.Duration) {
	if q.metrics != nil {
		q.metrics.QueueProcessed.WithLabelValues(outcome).Inc()
		q.metrics.QueueProcessingTime.Observe(elapsed.Seconds())
		q.metrics.QueueDepth.Set(float64(q.Status().Depth))
	}
}
