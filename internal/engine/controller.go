package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"convert_invoices/internal/domain"
	"convert_invoices/internal/event"
	"convert_invoices/internal/storage"
	"convert_invoices/pkg/quant"

	"github.com/shopspring/decimal"
)

var (
	ErrNoFreshEstimate   = errors.New("no fresh estimate for the current inputs")
	ErrSessionStopped    = errors.New("session stopped")
	ErrLiquidityExceeded = domain.ErrLiquidityExceeded
	ErrNoDestination     = domain.ErrNoDestination
)

// Pricer runs the network pipelines.
type Pricer interface {
	Quote(ctx context.Context, from, to string, amount decimal.Decimal) (domain.Quote, error)
	Destinations(ctx context.Context, from string) ([]domain.Currency, error)
}

// CurrencyLookup validates user selections.
type CurrencyLookup interface {
	BySystemName(name string) (domain.Currency, bool)
}

// QuoteJournal records successful estimates.
type QuoteJournal interface {
	SaveQuote(ctx context.Context, rec storage.QuoteRecord) (int64, error)
}

// Config tunes a Controller. Zero values fall back to defaults.
type Config struct {
	Session     string
	Debounce    time.Duration
	InboxSize   int
	DefaultFrom string
	// Snapshots receives a state dump if the loop panics. Optional.
	Snapshots *storage.SnapshotManager
}

const (
	defaultDebounce  = 500 * time.Millisecond
	defaultInboxSize = 64
	journalQueueSize = 32
	journalTimeout   = 2 * time.Second
)

// pipeline tracks one debounced network pipeline. gen increases on every
// qualifying input edit; timers and results carrying an older gen are stale.
type pipeline struct {
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// Controller is the per-session state machine.
//
// All state mutation happens on the Run goroutine. Network calls run in
// worker goroutines and report back through the inbox, so the loop never
// blocks on I/O and never processes two events at once.
type Controller struct {
	inbox   chan event.Event
	stopped chan struct{}
	nextSeq uint64
	runCtx  context.Context

	pricer    Pricer
	reg       CurrencyLookup
	journal   QuoteJournal
	journalCh chan storage.QuoteRecord
	journalWG sync.WaitGroup
	snapshots *storage.SnapshotManager
	session   string
	debounce  time.Duration
	defFrom   string

	pipes [2]pipeline

	// Boundary: used to notify the presentation layer of state changes
	onUpdate func(domain.ConversionState)

	mu    sync.RWMutex // written only by the loop; guards external reads
	state domain.ConversionState
	quote *domain.Quote // loop-only; backs the estimate fields, nil when they are empty
}

// NewController wires a session. journal may be nil.
func NewController(pricer Pricer, reg CurrencyLookup, journal QuoteJournal, cfg Config, onUpdate func(domain.ConversionState)) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	c := &Controller{
		inbox:     make(chan event.Event, cfg.InboxSize),
		stopped:   make(chan struct{}),
		pricer:    pricer,
		reg:       reg,
		journal:   journal,
		snapshots: cfg.Snapshots,
		session:   cfg.Session,
		debounce:  cfg.Debounce,
		defFrom:   cfg.DefaultFrom,
		onUpdate:  onUpdate,
	}
	if journal != nil {
		c.journalCh = make(chan storage.QuoteRecord, journalQueueSize)
	}
	return c
}

func (c *Controller) SetFromCurrency(systemName string) {
	c.post(&event.SetFromCurrencyEvent{BaseEvent: event.NewBase(), SystemName: systemName})
}

func (c *Controller) SetToCurrency(systemName string) {
	c.post(&event.SetToCurrencyEvent{BaseEvent: event.NewBase(), SystemName: systemName})
}

func (c *Controller) SetAmount(amount string) {
	c.post(&event.SetAmountEvent{BaseEvent: event.NewBase(), Amount: amount})
}

func (c *Controller) ToggleIDontCare() {
	c.post(&event.ToggleIDontCareEvent{BaseEvent: event.NewBase()})
}

// post delivers ev unless the loop has stopped.
func (c *Controller) post(ev event.Event) bool {
	select {
	case c.inbox <- ev:
		return true
	case <-c.stopped:
		return false
	}
}

// Run starts the event loop. This MUST be run in a single goroutine.
func (c *Controller) Run(ctx context.Context) {
	slog.Info("Controller started", slog.String("session", c.session))
	c.runCtx = ctx

	c.startJournal()

	defer close(c.stopped)
	defer c.stopJournal()
	defer c.stopPipelines()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.String("session", c.session), slog.Any("panic", r))
			c.dumpState(fmt.Sprintf("panic: %v", r))
		}
	}()

	if c.defFrom != "" {
		c.handleSetFrom(c.defFrom)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Controller stopping...", slog.String("session", c.session))
			return
		case ev := <-c.inbox:
			c.processEvent(ev)
		}
	}
}

func (c *Controller) processEvent(ev event.Event) {
	c.nextSeq++

	switch e := ev.(type) {
	case *event.SetFromCurrencyEvent:
		c.handleSetFrom(e.SystemName)
	case *event.SetToCurrencyEvent:
		c.handleSetTo(e.SystemName)
	case *event.SetAmountEvent:
		c.handleSetAmount(e.Amount)
	case *event.ToggleIDontCareEvent:
		c.handleToggleIDontCare()
	case *event.DebounceElapsedEvent:
		c.handleDebounce(e)
	case *event.EstimateResultEvent:
		c.handleEstimateResult(e)
	case *event.DestinationsResultEvent:
		c.handleDestinationsResult(e)
	case *event.InvoiceTermsRequestEvent:
		terms, err := c.invoiceTerms(e.Destination)
		e.Reply <- event.InvoiceTermsReply{Terms: terms, Err: err}
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
}

func (c *Controller) handleSetFrom(name string) {
	if c.state.IDontCare {
		slog.Info("Source change ignored in I-don't-care mode", slog.String("session", c.session))
		return
	}
	if _, ok := c.reg.BySystemName(name); !ok {
		c.recordError(domain.ConfigurationError("engine.SetFromCurrency", "currency %q is unknown or disabled", name))
		return
	}

	c.update(func(s *domain.ConversionState) {
		s.FromCurrency = name
		s.ToCurrency = ""
		s.AvailableToTokens = nil
		s.ClearEstimate()
		c.quote = nil
		clearError(s)
	})
	c.schedule(event.PipelineDestinations)
	c.schedule(event.PipelineEstimate)
}

func (c *Controller) handleSetTo(name string) {
	if name != "" {
		if _, ok := c.reg.BySystemName(name); !ok {
			c.recordError(domain.ConfigurationError("engine.SetToCurrency", "currency %q is unknown or disabled", name))
			return
		}
	}

	c.update(func(s *domain.ConversionState) {
		s.ToCurrency = name
		s.ClearEstimate()
		c.quote = nil
		clearError(s)
	})
	c.schedule(event.PipelineEstimate)
}

func (c *Controller) handleSetAmount(amount string) {
	c.update(func(s *domain.ConversionState) {
		s.Amount = amount
		s.ClearEstimate()
		c.quote = nil
		clearError(s)
	})
	c.schedule(event.PipelineEstimate)
}

func (c *Controller) handleToggleIDontCare() {
	c.update(func(s *domain.ConversionState) {
		s.IDontCare = !s.IDontCare
		if s.IDontCare {
			s.Amount = ""
			s.ClearEstimate()
			c.quote = nil
		}
	})
	if c.state.IDontCare {
		c.schedule(event.PipelineEstimate)
	}
}

// schedule restarts the pipeline's quiet window and supersedes any run in flight.
func (c *Controller) schedule(p event.Pipeline) {
	pl := &c.pipes[p]
	pl.gen++
	if pl.cancel != nil {
		pl.cancel()
		pl.cancel = nil
	}
	if pl.timer != nil {
		pl.timer.Stop()
	}

	c.setLoading(p, false)

	gen := pl.gen
	pl.timer = time.AfterFunc(c.debounce, func() {
		c.post(&event.DebounceElapsedEvent{BaseEvent: event.NewBase(), Pipeline: p, Gen: gen})
	})
}

func (c *Controller) handleDebounce(e *event.DebounceElapsedEvent) {
	pl := &c.pipes[e.Pipeline]
	if e.Gen != pl.gen {
		return
	}

	switch e.Pipeline {
	case event.PipelineEstimate:
		c.startEstimate(pl)
	case event.PipelineDestinations:
		c.startDestinations(pl)
	}
}

func (c *Controller) startEstimate(pl *pipeline) {
	from, to, raw := c.state.FromCurrency, c.state.ToCurrency, c.state.Amount
	if from == "" || to == "" || strings.TrimSpace(raw) == "" {
		return
	}

	decimals := quant.MaxDecimals
	if cur, ok := c.reg.BySystemName(from); ok {
		decimals = cur.Decimals
	}
	amount, err := quant.ParseAmountWithDecimals(raw, decimals)
	if err != nil {
		c.recordError(domain.ValidationError("engine.estimate", err))
		return
	}

	ctx, cancel := context.WithCancel(c.runCtx)
	pl.cancel = cancel
	gen := pl.gen
	c.setLoading(event.PipelineEstimate, true)

	go func() {
		q, err := c.pricer.Quote(ctx, from, to, amount)
		c.post(&event.EstimateResultEvent{BaseEvent: event.NewBase(), Gen: gen, Quote: q, Err: err})
	}()
}

func (c *Controller) startDestinations(pl *pipeline) {
	from := c.state.FromCurrency
	if from == "" {
		return
	}

	ctx, cancel := context.WithCancel(c.runCtx)
	pl.cancel = cancel
	gen := pl.gen
	c.setLoading(event.PipelineDestinations, true)

	go func() {
		list, err := c.pricer.Destinations(ctx, from)
		c.post(&event.DestinationsResultEvent{BaseEvent: event.NewBase(), Gen: gen, Currencies: list, Err: err})
	}()
}

func (c *Controller) handleEstimateResult(e *event.EstimateResultEvent) {
	pl := &c.pipes[event.PipelineEstimate]
	if e.Gen != pl.gen {
		slog.Debug("Stale estimate dropped", slog.Uint64("gen", e.Gen), slog.Uint64("current", pl.gen))
		return
	}
	c.release(pl)

	if e.Err != nil {
		slog.Warn("Estimate failed",
			slog.String("session", c.session),
			slog.String("kind", domain.KindOf(e.Err).String()),
			slog.Any("error", e.Err))
		c.update(func(s *domain.ConversionState) {
			s.IsLoadingEstimate = false
			s.ClearEstimate()
			c.quote = nil
			setError(s, e.Err)
		})
		return
	}

	q := e.Quote
	c.update(func(s *domain.ConversionState) {
		s.IsLoadingEstimate = false
		s.ApplyQuote(q)
		c.quote = &q
		clearError(s)
	})
	c.journalQuote(e.Ts, q)
}

func (c *Controller) handleDestinationsResult(e *event.DestinationsResultEvent) {
	pl := &c.pipes[event.PipelineDestinations]
	if e.Gen != pl.gen {
		slog.Debug("Stale destinations dropped", slog.Uint64("gen", e.Gen), slog.Uint64("current", pl.gen))
		return
	}
	c.release(pl)

	if e.Err != nil {
		slog.Warn("Destinations failed",
			slog.String("session", c.session),
			slog.String("kind", domain.KindOf(e.Err).String()),
			slog.Any("error", e.Err))
		c.update(func(s *domain.ConversionState) {
			s.IsLoadingAvailableTokens = false
			s.AvailableToTokens = nil
			setError(s, e.Err)
		})
		return
	}

	c.update(func(s *domain.ConversionState) {
		s.IsLoadingAvailableTokens = false
		s.AvailableToTokens = e.Currencies
	})
}

// journalQuote queues q for the journal writer; a full queue drops it.
func (c *Controller) journalQuote(ts quant.TimeStamp, q domain.Quote) {
	if c.journalCh == nil {
		return
	}
	select {
	case c.journalCh <- storage.NewQuoteRecord(c.session, int64(ts), q):
	default:
		slog.Warn("Journal queue full, quote dropped", slog.String("session", c.session), slog.String("pair", q.From.SystemName+"->"+q.To.SystemName))
	}
}

func (c *Controller) startJournal() {
	if c.journalCh == nil {
		return
	}
	c.journalWG.Add(1)
	go func() {
		defer c.journalWG.Done()
		for rec := range c.journalCh {
			c.writeJournal(rec)
		}
	}()
}

// stopJournal flushes queued records. Only the loop sends, so closing here is safe.
func (c *Controller) stopJournal() {
	if c.journalCh == nil {
		return
	}
	close(c.journalCh)
	c.journalWG.Wait()
}

// writeJournal runs detached from the session context so queued records
// still land after the session ends.
func (c *Controller) writeJournal(rec storage.QuoteRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	if _, err := c.journal.SaveQuote(ctx, rec); err != nil {
		slog.Warn("Failed to journal quote", slog.String("session", c.session), slog.Any("error", err))
	}
}

// recordError is for failures detected on the loop itself, before any I/O.
func (c *Controller) recordError(err error) {
	slog.Warn("Input rejected", slog.String("session", c.session), slog.Any("error", err))
	c.update(func(s *domain.ConversionState) {
		s.ClearEstimate()
		c.quote = nil
		setError(s, err)
	})
}

func (c *Controller) setLoading(p event.Pipeline, on bool) {
	cur := c.state.IsLoadingEstimate
	if p == event.PipelineDestinations {
		cur = c.state.IsLoadingAvailableTokens
	}
	if cur == on {
		return
	}
	c.update(func(s *domain.ConversionState) {
		if p == event.PipelineDestinations {
			s.IsLoadingAvailableTokens = on
		} else {
			s.IsLoadingEstimate = on
		}
	})
}

func (c *Controller) release(pl *pipeline) {
	if pl.cancel != nil {
		pl.cancel()
		pl.cancel = nil
	}
}

func (c *Controller) stopPipelines() {
	for i := range c.pipes {
		if c.pipes[i].timer != nil {
			c.pipes[i].timer.Stop()
		}
		c.release(&c.pipes[i])
	}
}

// update applies fn under the write lock and publishes the new state.
func (c *Controller) update(fn func(*domain.ConversionState)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.Seq = c.nextSeq
	snap := c.state.Clone()
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(snap)
	}
}

// Snapshot returns a copy of the current state (external read).
func (c *Controller) Snapshot() domain.ConversionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// InvoiceTerms builds the hand-off for invoice construction. It refuses
// unless a successful estimate for the current inputs exists and stays
// within the pool's liquidity.
//
// The request goes through the inbox, so every input posted before it is
// applied first.
func (c *Controller) InvoiceTerms(destination string) (domain.InvoiceTerms, error) {
	reply := make(chan event.InvoiceTermsReply, 1)
	req := &event.InvoiceTermsRequestEvent{BaseEvent: event.NewBase(), Destination: destination, Reply: reply}
	if !c.post(req) {
		return domain.InvoiceTerms{}, domain.ValidationError("engine.InvoiceTerms", ErrSessionStopped)
	}
	select {
	case r := <-reply:
		return r.Terms, r.Err
	case <-c.stopped:
		return domain.InvoiceTerms{}, domain.ValidationError("engine.InvoiceTerms", ErrSessionStopped)
	}
}

func (c *Controller) invoiceTerms(destination string) (domain.InvoiceTerms, error) {
	const op = "engine.InvoiceTerms"

	if c.quote == nil {
		if strings.TrimSpace(destination) == "" {
			return domain.InvoiceTerms{}, domain.ValidationError(op, ErrNoDestination)
		}
		return domain.InvoiceTerms{}, domain.ValidationError(op, ErrNoFreshEstimate)
	}
	return c.quote.InvoiceTerms(destination)
}

// dumpState writes the session state to the snapshot dir (for post-mortem).
func (c *Controller) dumpState(reason string) {
	if c.snapshots == nil {
		return
	}
	snap := storage.CreateSnapshot(c.nextSeq, reason, map[string]domain.ConversionState{c.session: c.state})
	if err := c.snapshots.Save(snap); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
		return
	}
	if err := c.snapshots.Cleanup(10); err != nil {
		slog.Warn("Snapshot cleanup failed", slog.Any("error", err))
	}
}

func setError(s *domain.ConversionState, err error) {
	s.LastError = err.Error()
	s.LastErrorKind = domain.KindOf(err).String()
}

func clearError(s *domain.ConversionState) {
	s.LastError = ""
	s.LastErrorKind = ""
}
