package pagecount

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Fitz uses the embedded MuPDF through go-fitz (no external tools needed).
type Fitz struct{}

// NewFitz creates a go-fitz based counter.
func NewFitz() *Fitz {
	return &Fitz{}
}

func (f *Fitz) CountPages(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	n := doc.NumPage()
	log.Debug().Int("pages", n).Int("bytes", len(data)).Msg("counted pages with go-fitz")
	return n, nil
}
