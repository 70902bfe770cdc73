package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "copyshop"

const (
	axiomBuffer    = 500
	axiomBatchSize = 100
)

// Options defines logger initialization parameters.
type Options struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Console is where terminal output goes. Defaults to stderr so that
	// stdout stays reserved for the order summary.
	Console io.Writer

	// RunID tags every line of one invocation.
	RunID string

	// Axiom
	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration
}

var sink *axiomSink

// Init sets up the global logger: console, optional file rotation, optional Axiom forwarding.
func Init(opts Options) error {
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var writers []io.Writer
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen})
	} else {
		writers = append(writers, console)
	}

	Close()
	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
		} else {
			sink = newAxiomSink(client, opts.AxiomDataset, opts.AxiomFlush)
			writers = append(writers, sink)
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	ctx := zerolog.New(io.MultiWriter(writers...)).Level(parseLevel(opts.Level)).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run_id", opts.RunID)
	}
	log.Logger = ctx.Logger()
	return nil
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Close drains and stops Axiom forwarding. Safe to call more than once.
func Close() {
	if sink != nil {
		sink.Close()
		sink = nil
	}
}

// ingester is the part of the Axiom client the sink needs.
type ingester interface {
	IngestEvents(ctx context.Context, dataset string, events []axiom.Event, options ...ingest.Option) (*ingest.Status, error)
}

func newAxiomClient(token, orgID string) (*axiom.Client, error) {
	opts := []axiom.Option{axiom.SetToken(token)}
	if orgID != "" {
		opts = append(opts, axiom.SetOrganizationID(orgID))
	}
	return axiom.NewClient(opts...)
}

// axiomSink is an io.Writer that batches zerolog JSON lines into Axiom
// events. Debug lines stay local.
type axiomSink struct {
	client  ingester
	dataset string
	ch      chan axiom.Event
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func newAxiomSink(client ingester, dataset string, flushEvery time.Duration) *axiomSink {
	if dataset == "" {
		dataset = "dev_" + serviceName
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	s := &axiomSink{
		client:  client,
		dataset: dataset,
		ch:      make(chan axiom.Event, axiomBuffer),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop(flushEvery)
	return s
}

func (s *axiomSink) Write(p []byte) (int, error) {
	var ev map[string]any
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = map[string]any{"message": string(p), "level": "info"}
	}
	if lvl, _ := ev["level"].(string); lvl == zerolog.LevelDebugValue || lvl == zerolog.LevelTraceValue {
		return len(p), nil
	}
	ev["service"] = serviceName
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	select {
	case s.ch <- axiom.Event(ev):
	default:
		// buffer full, drop
	}
	return len(p), nil
}

func (s *axiomSink) flush(batch []axiom.Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := s.client.IngestEvents(ctx, s.dataset, batch); err != nil {
		fmt.Fprintf(os.Stderr, "axiom ingest failed: %v\n", err)
	}
}

func (s *axiomSink) loop(flushEvery time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]axiom.Event, 0, axiomBatchSize)
	for {
		select {
		case <-s.done:
			// a short CLI run must not lose what is still buffered
			for {
				select {
				case ev := <-s.ch:
					batch = append(batch, ev)
				default:
					s.flush(batch)
					return
				}
			}
		case <-ticker.C:
			s.flush(batch)
			batch = batch[:0]
		case ev := <-s.ch:
			batch = append(batch, ev)
			if len(batch) >= axiomBatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *axiomSink) Close() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
