package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/copyshop/internal/metrics"
	"github.com/local/copyshop/internal/order"
	"github.com/local/copyshop/internal/session"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the order service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Health(cmd.Context()); err != nil {
				var cerr *order.ConnectivityError
				if errors.As(err, &cerr) {
					fmt.Fprintln(cmd.ErrOrStderr(), cerr.Message)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", a.cfg.API.BaseURL)
			return nil
		},
	}
}

func newBooksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List the books available for purchase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := a.client().PublicBooks(cmd.Context())
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), order.NewCatalog(books).Books())
			return nil
		},
	}
}

func newQuoteCmd(a *app) *cobra.Command {
	var (
		f       orderFlags
		offline bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Count pages and price an order without submitting it",
		Example: `  copyshop quote --material1 apuntes.pdf --material2 https://example.com/tp.pdf
  copyshop quote -m pedido.yaml --book 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.session()
			if !offline {
				s.Start(ctx)
			}
			if err := prepare(ctx, cmd, a, s, &f); err != nil {
				return err
			}
			if !offline {
				if err := s.WaitReady(ctx); err != nil {
					log.Warn().Err(err).Msg("quoting without the order service; books are not priced")
				}
			}

			snap := s.Draft().Snapshot()
			printSummary(cmd.OutOrStdout(), snap, a.cfg.Pricing.PricePerPage)
			metrics.SetLastAmountDue(snap.Totals.AmountDue)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the order service (books are not priced)")
	return cmd
}

func newSubmitCmd(a *app) *cobra.Command {
	var (
		f   orderFlags
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send an order to the shop",
		Example: `  copyshop submit --name "Ana Pérez" --phone "11 5555-0000" --note "doble faz" \
    --material1 apuntes.pdf --proof transferencia.png
  copyshop submit -m pedido.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.session()
			s.Start(ctx)
			if err := prepare(ctx, cmd, a, s, &f); err != nil {
				return err
			}
			if err := s.WaitReady(ctx); err != nil {
				log.Warn().Err(err).Msg("order service health check failed, trying anyway")
			}

			snap := s.Draft().Snapshot()
			if err := requireFields(snap.Personal); err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), snap, a.cfg.Pricing.PricePerPage)
			if !yes && snap.Slot(order.Proof).IsEmpty() {
				log.Warn().Msg("submitting without a payment proof")
			}

			rc, err := s.Submit(ctx)
			if err != nil {
				if errors.Is(err, session.ErrSubmissionInFlight) {
					return err
				}
				return fmt.Errorf("order not submitted: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nPedido #%s\n", rc.OrderNumber)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not warn about a missing payment proof")
	return cmd
}

func prepare(ctx context.Context, cmd *cobra.Command, a *app, s *session.Session, f *orderFlags) error {
	personal, refs, books, err := f.resolve(cmd)
	if err != nil {
		return err
	}
	loader := a.loader()
	defer loader.Close()
	return fill(ctx, s, loader, personal, refs, books)
}

// requireFields checks the fields the order form marks as mandatory.
func requireFields(p order.Personal) error {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "--name")
	}
	if strings.TrimSpace(p.Phone) == "" {
		missing = append(missing, "--phone")
	}
	if strings.TrimSpace(p.Note) == "" {
		missing = append(missing, "--note")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
