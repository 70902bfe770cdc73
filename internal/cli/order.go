package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/local/copyshop/internal/manifest"
	"github.com/local/copyshop/internal/order"
	"github.com/local/copyshop/internal/session"
	"github.com/local/copyshop/internal/source"
)

// maxParallelLoads bounds concurrent file downloads, one per material slot.
const maxParallelLoads = 3

// orderFlags are the order fields shared by quote and submit. Explicit flags
// override values read from --manifest.
type orderFlags struct {
	manifest string

	name  string
	phone string
	email string
	note  string
	optIn bool

	materials [3]string
	proof     string
	books     []string
}

func (f *orderFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.manifest, "manifest", "m", "", "YAML order manifest")
	fl.StringVar(&f.name, "name", "", "customer full name")
	fl.StringVar(&f.phone, "phone", "", "customer phone")
	fl.StringVar(&f.email, "email", "", "customer email")
	fl.StringVar(&f.note, "note", "", "free-text note for the shop")
	fl.BoolVar(&f.optIn, "opt-in", false, "receive news from the shop")
	for i := range f.materials {
		fl.StringVar(&f.materials[i], fmt.Sprintf("material%d", i+1), "", fmt.Sprintf("PDF to print in slot %d (path, http(s), s3:// or gs:// URL)", i+1))
	}
	fl.StringVar(&f.proof, "proof", "", "payment proof (PDF, JPG or PNG)")
	fl.StringSliceVarP(&f.books, "book", "b", nil, "catalog book id to add (repeatable)")
}

// resolve merges the manifest with the explicit flags.
func (f *orderFlags) resolve(cmd *cobra.Command) (order.Personal, map[order.Slot]string, []string, error) {
	var (
		personal order.Personal
		refs     = map[order.Slot]string{}
		books    []string
	)
	if f.manifest != "" {
		m, err := manifest.Load(f.manifest)
		if err != nil {
			return personal, nil, nil, err
		}
		personal = m.Personal()
		refs = m.Refs()
		books = m.Books
	}

	fl := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if fl.Changed(name) {
			*dst = v
		}
	}
	set("name", &personal.Name, f.name)
	set("phone", &personal.Phone, f.phone)
	set("email", &personal.Email, f.email)
	set("note", &personal.Note, f.note)
	if fl.Changed("opt-in") {
		personal.OptIn = f.optIn
	}
	for i, slot := range order.Materials {
		if name := fmt.Sprintf("material%d", i+1); fl.Changed(name) {
			refs[slot] = f.materials[i]
		}
	}
	if fl.Changed("proof") {
		refs[order.Proof] = f.proof
	}
	if fl.Changed("book") {
		books = f.books
	}
	return personal, refs, books, nil
}

// fill loads every referenced file and applies the order to the session draft.
// Rejected files are reported through the session notifier and do not abort
// the fill; load failures do.
func fill(ctx context.Context, s *session.Session, loader *source.Loader, personal order.Personal, refs map[order.Slot]string, books []string) error {
	var files [4]*order.File

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for _, slot := range order.Slots {
		ref, ok := refs[slot]
		if !ok || ref == "" {
			continue
		}
		g.Go(func() error {
			f, err := loader.Load(gctx, ref)
			if err != nil {
				return fmt.Errorf("%s: %w", slot, err)
			}
			files[slot] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d := s.Draft()
	d.SetPersonal(personal)
	for _, id := range books {
		d.SelectBook(id)
	}
	for _, slot := range order.Slots {
		if files[slot] == nil {
			continue
		}
		if _, err := d.SetFile(ctx, slot, files[slot]); err != nil {
			var verr *order.ValidationError
			if errors.As(err, &verr) {
				continue
			}
			return err
		}
	}
	if err := d.Settle(ctx); err != nil {
		return err
	}

	snap := d.Snapshot()
	for _, id := range snap.Selected {
		if snap.Catalog.Len() > 0 {
			if _, ok := snap.Catalog.Lookup(id); !ok {
				log.Warn().Str("book", id).Msg("selected book is not in the catalog")
			}
		}
	}
	return nil
}
