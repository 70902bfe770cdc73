package order

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/copyshop/internal/filetype"
	"github.com/local/copyshop/internal/metrics"
)

// PageCounter resolves the page count of a PDF.
type PageCounter interface {
	CountPages(ctx context.Context, data []byte) (int, error)
}

// AlertKind mirrors the two alert styles of the form.
type AlertKind string

const (
	AlertSuccess AlertKind = "success"
	AlertDanger  AlertKind = "danger"
)

// Alert is a user-visible message.
type Alert struct {
	Kind    AlertKind
	Message string
	Err     error
}

// Notifier surfaces alerts to the user.
type Notifier interface {
	Notify(Alert)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Alert)

func (f NotifierFunc) Notify(a Alert) { f(a) }

// Personal holds the customer's contact fields.
type Personal struct {
	Name  string
	Phone string
	Email string
	Note  string
	OptIn bool
}

// Options configures a Draft.
type Options struct {
	Pricing  Pricing
	Counter  PageCounter
	Notifier Notifier
}

// Draft is the order being filled in. All methods are safe for concurrent
// use; page-count resolutions write back from their own goroutines.
type Draft struct {
	pricing  Pricing
	counter  PageCounter
	notify   Notifier
	detector *filetype.Detector

	mu       sync.Mutex
	inflight int
	idle     chan struct{} // closed when inflight drops to zero
	personal Personal
	slots    [slotCount]FileSlot
	selected []string
	catalog  Catalog
	totals   Totals
}

// NewDraft returns an empty draft.
func NewDraft(opts Options) *Draft {
	d := &Draft{
		pricing:  opts.Pricing,
		counter:  opts.Counter,
		notify:   opts.Notifier,
		detector: filetype.New(),
	}
	if d.notify == nil {
		d.notify = NotifierFunc(func(Alert) {})
	}
	d.reset()
	return d
}

// Snapshot is a consistent copy of the draft.
type Snapshot struct {
	Personal Personal
	Slots    [slotCount]FileSlot
	Selected []string
	Catalog  Catalog
	Totals   Totals
}

// Slot returns the given slot's current value.
func (s Snapshot) Slot(slot Slot) FileSlot { return s.Slots[slot] }

// Pending reports whether any material is still being analyzed.
func (s Snapshot) Pending() bool {
	for _, fs := range s.Slots {
		if fs.Analyzing() {
			return true
		}
	}
	return false
}

func (d *Draft) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Personal: d.personal,
		Slots:    d.slots,
		Selected: append([]string(nil), d.selected...),
		Catalog:  d.catalog,
		Totals:   d.totals,
	}
}

func (d *Draft) Slot(slot Slot) FileSlot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slots[slot]
}

func (d *Draft) Totals() Totals {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totals
}

func (d *Draft) SetPersonal(p Personal) {
	d.mu.Lock()
	d.personal = p
	d.mu.Unlock()
}

// SetCatalog installs the loaded catalog and reprices the current selection.
func (d *Draft) SetCatalog(c Catalog) {
	d.mu.Lock()
	d.catalog = c
	d.recompute()
	d.mu.Unlock()
}

// SelectBook adds a book id to the selection. Ids not yet in the catalog are
// kept and become priced once the catalog arrives.
func (d *Draft) SelectBook(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.selected {
		if s == id {
			return
		}
	}
	d.selected = append(d.selected, id)
	d.recompute()
}

func (d *Draft) DeselectBook(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.selected[:0]
	for _, s := range d.selected {
		if s != id {
			out = append(out, s)
		}
	}
	d.selected = out
	d.recompute()
}

// Reset discards every order field. The session catalog is kept.
func (d *Draft) Reset() {
	d.mu.Lock()
	d.reset()
	d.mu.Unlock()
}

func (d *Draft) reset() {
	d.personal = Personal{}
	for _, s := range Slots {
		d.slots[s] = emptySlot(s)
	}
	d.selected = nil
	d.recompute()
}

// recompute must be called with mu held after every mutation that can
// change a page count, the selection or the catalog.
func (d *Draft) recompute() {
	var pages [3]int
	for i, s := range Materials {
		pages[i] = d.slots[s].PricedPages()
	}
	d.totals = Derive(d.pricing, pages, d.catalog, d.selected)
}

// SetFile assigns f to slot, or clears the slot when f is nil.
//
// A file whose declared type the slot does not accept is rejected with a
// *ValidationError and the slot keeps its previous value. An accepted
// material enters the resolving state and its page count is resolved in
// the background; Settle waits for those resolutions.
func (d *Draft) SetFile(ctx context.Context, slot Slot, f *File) (FileSlot, error) {
	if !slot.Valid() {
		return FileSlot{}, fmt.Errorf("set file: %w", errInvalidSlot(slot))
	}

	if f == nil {
		d.mu.Lock()
		d.slots[slot] = emptySlot(slot)
		d.recompute()
		fs := d.slots[slot]
		d.mu.Unlock()
		metrics.IncIntake(slot.Kind(), "cleared")
		return fs, nil
	}

	ct := filetype.Normalize(f.ContentType)
	if ct == "" {
		ct = d.detector.Detect(f.Name, f.Data).MIMEType
	}
	if !slot.Accepts(ct) {
		msg := MsgMaterialType
		if slot == Proof {
			msg = MsgProofType
		}
		verr := &ValidationError{Slot: slot, ContentType: ct, Message: msg}
		log.Warn().Str("slot", slot.String()).Str("content_type", ct).Str("file", f.Name).Msg("file rejected")
		metrics.IncIntake(slot.Kind(), "rejected")
		d.notify.Notify(Alert{Kind: AlertDanger, Message: msg, Err: verr})
		return d.Slot(slot), verr
	}

	size := f.Size
	if size <= 0 {
		size = int64(len(f.Data))
	}
	fs := FileSlot{
		Slot:  slot,
		File:  f,
		Name:  f.Name,
		Size:  size,
		token: uuid.NewString(),
	}
	if slot.IsMaterial() {
		fs.Status = StatusResolving
	} else {
		fs.Status = StatusAttached
	}

	d.mu.Lock()
	d.slots[slot] = fs
	d.recompute()
	if slot.IsMaterial() {
		if d.inflight == 0 {
			d.idle = make(chan struct{})
		}
		d.inflight++
	}
	d.mu.Unlock()

	metrics.IncIntake(slot.Kind(), "accepted")
	log.Info().Str("slot", slot.String()).Str("file", fs.Name).Int64("size", fs.Size).Str("content_type", ct).Msg("file accepted")

	if slot.IsMaterial() {
		// resolutions are never cancelled; a superseded result is dropped on write-back
		go d.resolve(context.WithoutCancel(ctx), fs)
	}
	return fs, nil
}

func (d *Draft) resolve(ctx context.Context, fs FileSlot) {
	defer d.resolved()

	var (
		pages int
		err   error
	)
	if d.counter == nil {
		err = errors.New("no page counter configured")
	} else {
		pages, err = d.counter.CountPages(ctx, fs.File.Data)
	}
	if err != nil || pages < 0 {
		pages = 0
	}

	d.mu.Lock()
	cur := d.slots[fs.Slot]
	if cur.token != fs.token {
		d.mu.Unlock()
		metrics.IncAnalysis("superseded", 0)
		log.Debug().Str("slot", fs.Slot.String()).Str("file", fs.Name).Msg("page count superseded by a newer file")
		return
	}
	cur.Status = StatusResolved
	cur.Pages = pages
	d.slots[fs.Slot] = cur
	d.recompute()
	d.mu.Unlock()

	switch {
	case err != nil:
		metrics.IncAnalysis("failed", 0)
		log.Warn().Err(err).Str("slot", fs.Slot.String()).Str("file", fs.Name).Msg("page count failed")
		aerr := &AnalysisError{Slot: fs.Slot, Message: MsgAnalysisFailed, Err: err}
		d.notify.Notify(Alert{Kind: AlertDanger, Message: aerr.Message, Err: aerr})
	case pages == 0:
		metrics.IncAnalysis("empty", 0)
		log.Warn().Str("slot", fs.Slot.String()).Str("file", fs.Name).Msg("document reported zero pages")
		aerr := &AnalysisError{Slot: fs.Slot, Message: MsgPagesUnknown}
		d.notify.Notify(Alert{Kind: AlertDanger, Message: aerr.Message, Err: aerr})
	default:
		metrics.IncAnalysis("ok", pages)
		log.Info().Str("slot", fs.Slot.String()).Str("file", fs.Name).Int("pages", pages).Msg("pages counted")
	}
}

func (d *Draft) resolved() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	if d.inflight == 0 {
		close(d.idle)
	}
}

// Settle blocks until no page-count resolution is outstanding or ctx ends.
// Files attached while it waits extend the wait.
func (d *Draft) Settle(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.inflight == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func errInvalidSlot(s Slot) error { return fmt.Errorf("invalid slot %d", int(s)) }
