// Package session runs one order-intake session: connectivity probe, catalog
// load, the draft, and a single-flight submission.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/local/copyshop/internal/backend"
	"github.com/local/copyshop/internal/metrics"
	"github.com/local/copyshop/internal/order"
)

// ErrSubmissionInFlight is returned when Submit is called while another
// submission has not finished.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// MsgSubmitted is the success alert; %s is the order number.
const MsgSubmitted = "¡Perfecto! Tu solicitud ha sido enviada exitosamente como Pedido #%s. Te contactaremos pronto con el presupuesto."

// Backend is the remote order service.
type Backend interface {
	Health(ctx context.Context) error
	PublicBooks(ctx context.Context) ([]order.Book, error)
	SubmitOrder(ctx context.Context, p order.Payload) (backend.Receipt, error)
}

// Options configures a Session.
type Options struct {
	Backend  Backend
	Pricing  order.Pricing
	Counter  order.PageCounter
	Notifier order.Notifier
}

// Session owns a Draft and coordinates the remote calls around it.
type Session struct {
	backend Backend
	notify  order.Notifier
	draft   *order.Draft
	submit  *semaphore.Weighted

	ready     sync.WaitGroup
	startOnce sync.Once

	mu        sync.Mutex
	healthErr error
	booksErr  error
}

// New creates a Session with an empty draft.
func New(opts Options) *Session {
	notify := opts.Notifier
	if notify == nil {
		notify = order.NotifierFunc(func(order.Alert) {})
	}
	return &Session{
		backend: opts.Backend,
		notify:  notify,
		draft: order.NewDraft(order.Options{
			Pricing:  opts.Pricing,
			Counter:  opts.Counter,
			Notifier: notify,
		}),
		submit: semaphore.NewWeighted(1),
	}
}

// Draft returns the order being filled in.
func (s *Session) Draft() *order.Draft { return s.draft }

// Start probes the service and loads the catalog in the background. It
// returns immediately; use WaitReady to wait for both.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.ready.Add(2)
		go s.checkHealth(ctx)
		go s.loadCatalog(ctx)
	})
}

// WaitReady blocks until the startup calls finish or ctx ends. It returns
// the health error, if any; catalog failures are only logged.
func (s *Session) WaitReady(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.ready.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthErr
}

// CatalogErr reports why the catalog could not be loaded.
func (s *Session) CatalogErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.booksErr
}

func (s *Session) checkHealth(ctx context.Context) {
	defer s.ready.Done()
	err := s.backend.Health(ctx)
	s.mu.Lock()
	s.healthErr = err
	s.mu.Unlock()
	if err != nil {
		log.Warn().Err(err).Msg("order service health check failed")
		s.notify.Notify(order.Alert{Kind: order.AlertDanger, Message: alertMessage(err), Err: err})
		return
	}
	log.Debug().Msg("order service healthy")
}

func (s *Session) loadCatalog(ctx context.Context) {
	defer s.ready.Done()
	books, err := s.backend.PublicBooks(ctx)
	if err != nil {
		s.mu.Lock()
		s.booksErr = err
		s.mu.Unlock()
		log.Error().Err(err).Msg("failed to load book catalog")
		return
	}
	s.draft.SetCatalog(order.NewCatalog(books))
	log.Info().Int("books", len(books)).Msg("book catalog loaded")
}

// Submit sends the current draft. Outstanding page counts are awaited first.
// On success the draft is reset; on failure it is left untouched.
func (s *Session) Submit(ctx context.Context) (backend.Receipt, error) {
	if !s.submit.TryAcquire(1) {
		return backend.Receipt{}, ErrSubmissionInFlight
	}
	defer s.submit.Release(1)

	if err := s.draft.Settle(ctx); err != nil {
		return backend.Receipt{}, fmt.Errorf("waiting for page counts: %w", err)
	}

	snap := s.draft.Snapshot()
	for _, slot := range order.Materials {
		if fs := snap.Slot(slot); fs.Unreadable() {
			log.Warn().Str("slot", slot.String()).Str("file", fs.Name).Msg("submitting material with unknown page count")
		}
	}

	rc, err := s.backend.SubmitOrder(ctx, order.Assemble(snap))
	if err != nil {
		log.Error().Err(err).Msg("order submission failed")
		s.notify.Notify(order.Alert{Kind: order.AlertDanger, Message: alertMessage(err), Err: err})
		return backend.Receipt{}, err
	}

	metrics.SetLastAmountDue(snap.Totals.AmountDue)
	s.draft.Reset()
	s.notify.Notify(order.Alert{Kind: order.AlertSuccess, Message: fmt.Sprintf(MsgSubmitted, rc.OrderNumber)})
	return rc, nil
}

func alertMessage(err error) string {
	var (
		cerr *order.ConnectivityError
		serr *backend.SubmissionError
	)
	switch {
	case errors.As(err, &serr):
		return serr.Message
	case errors.As(err, &cerr):
		return cerr.Message
	default:
		return backend.MsgSubmitFailed
	}
}
