package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/agrichat/pkg/agrodata"
	"github.com/harunnryd/agrichat/pkg/catalog"
	"github.com/harunnryd/agrichat/pkg/chain"
	"github.com/harunnryd/agrichat/pkg/errorsx"
	"github.com/harunnryd/agrichat/pkg/intent"
	"github.com/harunnryd/agrichat/pkg/language"
	"github.com/harunnryd/agrichat/pkg/logging"
	"github.com/harunnryd/agrichat/pkg/metrics"
	"github.com/harunnryd/agrichat/pkg/notify/twilio"
	"github.com/harunnryd/agrichat/pkg/redact"
	"github.com/harunnryd/agrichat/pkg/turn"
)

// DefaultPageTimeout bounds one expert page, which runs after its turn
// has rendered.
const DefaultPageTimeout = 15 * time.Second

const (
	noticeExpertPaged        = "chat_expert_paged"
	noticePayloadUnavailable = "chat_payload_unavailable"
)

// ErrTornDown is returned for turns abandoned by Conversation.Close.
var ErrTornDown = errorsx.New(errorsx.ReasonConversationTornDown, "conversation torn down")

// ExpertPager notifies an expert that a farmer asked for one.
type ExpertPager interface {
	Send(ctx context.Context, page twilio.Page) (string, error)
}

type Options struct {
	Matcher    *language.Matcher
	Classifier *intent.Classifier
	Chain      *chain.Chain
	Catalog    *catalog.Catalog
	// Source is optional; without it turns render with no payload.
	Source agrodata.Source
	// Pager is optional. Pages are sent in the background after the turn
	// renders and never hold it up.
	Pager           ExpertPager
	PageTimeout     time.Duration
	DefaultLocation string
	Observer        metrics.Observer
	Logger          *slog.Logger
}

// Orchestrator runs a single turn through detection, classification,
// generation and rendering. It is stateless and shared by all
// conversations; ordering is the Conversation's job.
type Orchestrator struct {
	matcher         *language.Matcher
	classifier      *intent.Classifier
	chain           *chain.Chain
	catalog         *catalog.Catalog
	source          agrodata.Source
	pager           ExpertPager
	pageTimeout     time.Duration
	pages           sync.WaitGroup
	defaultLocation string
	obs             metrics.Observer
	logger          *slog.Logger
}

func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Matcher == nil || opts.Chain == nil || opts.Catalog == nil {
		return nil, errors.New("chat: matcher, chain and catalog are required")
	}
	if opts.Classifier == nil {
		opts.Classifier = intent.NewClassifier(nil)
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultPageTimeout
	}
	return &Orchestrator{
		matcher:         opts.Matcher,
		classifier:      opts.Classifier,
		chain:           opts.Chain,
		catalog:         opts.Catalog,
		source:          opts.Source,
		pager:           opts.Pager,
		pageTimeout:     opts.PageTimeout,
		defaultLocation: strings.TrimSpace(opts.DefaultLocation),
		obs:             metrics.OrNoop(opts.Observer),
		logger:          logging.NewComponentLogger(opts.Logger, "chat"),
	}, nil
}

// Process runs one turn. fsm may be nil. The only error is ErrTornDown,
// returned when ctx is cancelled before the turn renders; every other
// failure degrades inside the turn.
func (o *Orchestrator) Process(ctx context.Context, id string, in Input, fsm *turn.Machine) (Output, error) {
	if fsm == nil {
		fsm = turn.NewMachine()
	}
	t := &Turn{ID: id, Input: in, StartedAt: time.Now()}
	if err := fsm.Begin(id); err != nil {
		// A previous turn was abandoned mid-flight.
		fsm.Abort("stale turn")
		_ = fsm.Begin(id)
	}

	t.Detection = o.detect(in)
	if t.Detection.Ambiguous {
		o.logger.Debug("detection_ambiguous", "turn_id", id, "language", t.Detection.Language)
		o.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventDetectionAmbiguous,
			Time: time.Now(),
			Tags: map[string]string{"language": t.Detection.Language},
		})
	}
	_ = fsm.Transition(turn.StateClassifying, "language "+t.Detection.Language)

	t.Intent = o.classifier.Classify(language.Normalize(in.Text))
	_ = fsm.Transition(turn.StateGenerating, "intent "+string(t.Intent))

	fetchErr := o.generate(ctx, t)
	if ctx.Err() != nil {
		fsm.Abort("torn down")
		return Output{}, ErrTornDown
	}
	_ = fsm.Transition(turn.StateRendering, "generated by "+t.Result.Provider)

	t.RenderedAt = time.Now()
	t.Paged = o.dispatchPage(t)
	out := t.Render()
	out.Notice = o.notice(t, fetchErr)
	_ = fsm.Transition(turn.StateIdle, "rendered")

	latency := t.RenderedAt.Sub(t.StartedAt)
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventTurnRendered,
		Time:  t.RenderedAt,
		Value: latency.Seconds(),
		Tags: map[string]string{
			"intent":   string(t.Intent),
			"language": t.Detection.Language,
			"provider": t.Result.Provider,
		},
	})
	o.logger.Info("turn_rendered",
		"turn_id", id,
		"language", t.Detection.Language,
		"confidence", t.Detection.Confidence,
		"intent", t.Intent,
		"provider", t.Result.Provider,
		"payload", out.PayloadKind,
		"latency_ms", latency.Milliseconds(),
		"text", redact.Snippet(in.Text, 80),
	)
	return out, nil
}

// detect honours a supported hint outright; unsupported hints are ignored.
func (o *Orchestrator) detect(in Input) language.Detection {
	var d language.Detection
	hint := strings.ToLower(strings.TrimSpace(in.LanguageHint))
	if hint != "" && o.matcher.Set().Supported(hint) {
		d = language.Detection{Language: hint, Confidence: language.MaxConfidence}
	} else {
		d = o.matcher.Detect(in.Text)
	}
	if tc := in.TranscriptConfidence; tc != nil && *tc > 0 && *tc <= 1 {
		d.Confidence = language.Clamp(d.Confidence * *tc)
	}
	return d
}

// generate resolves the reply and, for data intents, fetches the payload at
// the same time. Both finish before it returns. The returned error is the
// fetch failure, if any; the reply itself cannot fail.
func (o *Orchestrator) generate(ctx context.Context, t *Turn) error {
	var g errgroup.Group
	g.Go(func() error {
		t.Result = o.chain.Resolve(ctx, t.Intent, t.Detection.Language, t.Input.Text)
		return nil
	})

	var fetchErr error
	if t.Intent.NeedsData() && o.source != nil {
		g.Go(func() error {
			location := strings.TrimSpace(t.Input.Location)
			if location == "" {
				location = o.defaultLocation
			}
			payload, err := agrodata.Fetch(ctx, o.source, t.Intent, location)
			if err != nil {
				fetchErr = err
				return nil
			}
			t.Payload = payload
			return nil
		})
	}
	_ = g.Wait()

	if fetchErr != nil && ctx.Err() == nil {
		o.logger.Warn("fetch_failed", "turn_id", t.ID, "intent", t.Intent, "reason", errorsx.Reason(fetchErr), "error", fetchErr)
		o.obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventFetchFailed,
			Time: time.Now(),
			Tags: map[string]string{"intent": string(t.Intent)},
		})
	}
	return fetchErr
}

// dispatchPage starts the expert page for a rendered expert request and
// reports whether one was dispatched. Delivery is not awaited: the send
// runs on its own timeout, detached from the turn and its conversation.
func (o *Orchestrator) dispatchPage(t *Turn) bool {
	if o.pager == nil || t.Intent != intent.ExpertRequest || t.Payload == nil || t.Payload.Expert == nil {
		return false
	}
	expert := *t.Payload.Expert
	if strings.TrimSpace(expert.Contact) == "" {
		return false
	}
	page := twilio.Page{
		To:       expert.Contact,
		Expert:   expert.Name,
		Question: t.Input.Text,
		Language: t.Detection.Language,
		TurnID:   t.ID,
	}
	o.pages.Add(1)
	go func() {
		defer o.pages.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.pageTimeout)
		defer cancel()
		o.page(ctx, page)
	}()
	return true
}

func (o *Orchestrator) page(ctx context.Context, page twilio.Page) {
	sid, err := o.pager.Send(ctx, page)
	if err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonNotifyFailed)
		o.logger.Warn("notify_failed", "turn_id", page.TurnID, "expert", page.Expert, "reason", errorsx.Reason(err), "error", err)
		return
	}
	o.logger.Info("expert_paged", "turn_id", page.TurnID, "expert", page.Expert, "sid", sid)
	o.obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventExpertPaged, Time: time.Now()})
}

// Wait blocks until every dispatched expert page has finished.
func (o *Orchestrator) Wait() {
	o.pages.Wait()
}

func (o *Orchestrator) notice(t *Turn, fetchErr error) string {
	lang := t.Detection.Language
	switch {
	case t.Paged:
		return o.catalog.Lookup(noticeExpertPaged, lang)
	case fetchErr != nil:
		return o.catalog.Lookup(noticePayloadUnavailable, lang)
	default:
		return ""
	}
}
