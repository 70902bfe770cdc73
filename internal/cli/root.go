// Package cli wires the copyshop commands.
package cli

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/copyshop/internal/backend"
	"github.com/local/copyshop/internal/config"
	"github.com/local/copyshop/internal/logger"
	"github.com/local/copyshop/internal/metrics"
	"github.com/local/copyshop/internal/order"
	"github.com/local/copyshop/internal/pagecount"
	"github.com/local/copyshop/internal/session"
	"github.com/local/copyshop/internal/source"
)

// app carries what every subcommand needs once the environment is loaded.
type app struct {
	cfg config.Config
	out io.Writer
	err io.Writer

	// counter overrides the default PDF page counter when set.
	counter order.PageCounter
}

func (a *app) client() *backend.Client {
	return backend.New(backend.Options{
		BaseURL: a.cfg.API.BaseURL,
		Endpoints: backend.Endpoints{
			Health: a.cfg.API.HealthPath,
			Books:  a.cfg.API.BooksPath,
			Orders: a.cfg.API.OrdersPath,
		},
		HealthTimeout:  a.cfg.API.HealthTimeout,
		RequestTimeout: a.cfg.API.RequestTimeout,
	})
}

func (a *app) session() *session.Session {
	counter := a.counter
	if counter == nil {
		counter = pagecount.Default()
	}
	return session.New(session.Options{
		Backend: a.client(),
		Pricing: order.Pricing{
			PricePerPage: a.cfg.Pricing.PricePerPage,
			DepositRatio: a.cfg.Pricing.DepositRatio,
		},
		Counter:  counter,
		Notifier: &alertPrinter{w: a.err},
	})
}

func (a *app) loader() *source.Loader { return source.New(a.cfg.Source) }

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{out: os.Stdout, err: os.Stderr})
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copyshop",
		Short: "Quote and submit photocopy orders",
		Long: `copyshop prices printing orders from their PDF materials and submits them,
together with any selected books and the payment proof, to the shop's order service.

Materials and proofs may be local paths, http(s) URLs, s3://bucket/key or
gs://bucket/object references.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			a.cfg = config.FromEnv()
			if err := logger.Init(logger.Options{
				Level:        a.cfg.Logging.Level,
				Pretty:       a.cfg.Logging.Pretty,
				File:         a.cfg.Logging.File,
				MaxSizeMB:    a.cfg.Logging.MaxSizeMB,
				MaxBackups:   a.cfg.Logging.MaxBackups,
				MaxAgeDays:   a.cfg.Logging.MaxAgeDays,
				Compress:     a.cfg.Logging.Compress,
				Console:      a.err,
				RunID:        uuid.NewString(),
				SendToAxiom:  a.cfg.Axiom.Send && a.cfg.Axiom.APIKey != "",
				AxiomAPIKey:  a.cfg.Axiom.APIKey,
				AxiomOrgID:   a.cfg.Axiom.OrgID,
				AxiomDataset: a.cfg.Axiom.Dataset,
				AxiomFlush:   a.cfg.Axiom.FlushInterval,
			}); err != nil {
				return err
			}
			metrics.Init()
			log.Debug().Str("api", a.cfg.API.BaseURL).Float64("price_per_page", a.cfg.Pricing.PricePerPage).Msg("configuration loaded")
			return nil
		},
	}

	cmd.SetOut(a.out)
	cmd.SetErr(a.err)

	cmd.AddCommand(newHealthCmd(a))
	cmd.AddCommand(newBooksCmd(a))
	cmd.AddCommand(newQuoteCmd(a))
	cmd.AddCommand(newSubmitCmd(a))

	for _, sub := range cmd.Commands() {
		sub.RunE = a.finishing(sub.RunE)
	}
	return cmd
}

// finishing wraps a subcommand so metrics and log shipping are flushed
// whether it succeeds or fails. Cobra skips post-run hooks on error.
func (a *app) finishing(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer func() {
			if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
				log.Warn().Err(err).Str("path", a.cfg.Metrics.Textfile).Msg("failed to write metrics textfile")
			}
			logger.Close()
		}()
		return run(cmd, args)
	}
}
