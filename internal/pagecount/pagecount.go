// Package pagecount resolves the number of pages of an in-memory PDF.
package pagecount

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// ErrNotPDF is returned when the data does not start like a PDF document.
var ErrNotPDF = errors.New("not a pdf document")

// Counter counts pages of a PDF held in memory.
type Counter interface {
	CountPages(ctx context.Context, data []byte) (int, error)
}

// PDFCPU counts pages with pdfcpu using relaxed validation, so slightly
// malformed documents produced by scanners still resolve.
type PDFCPU struct {
	conf *model.Configuration
}

// NewPDFCPU builds a pdfcpu-backed counter.
func NewPDFCPU() *PDFCPU {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPU{conf: conf}
}

func (p *PDFCPU) CountPages(ctx context.Context, data []byte) (n int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !looksLikePDF(data) {
		return 0, ErrNotPDF
	}
	// pdfcpu can panic on badly broken cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdf page count failed: %v", r)
		}
	}()
	n, err = api.PageCount(bytes.NewReader(data), p.conf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// Chain tries each counter in turn and returns the first positive count.
// A zero count from one counter is not trusted while another may still
// resolve the document.
type Chain []Counter

func (c Chain) CountPages(ctx context.Context, data []byte) (int, error) {
	var errs []error
	for i, counter := range c {
		n, err := counter.CountPages(ctx, data)
		if err == nil && n > 0 {
			return n, nil
		}
		if err != nil {
			if errors.Is(err, ErrNotPDF) || ctx.Err() != nil {
				return 0, err
			}
			log.Debug().Err(err).Int("counter", i).Msg("page counter failed, trying next")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return 0, nil
}

// Default returns the counter chain used by the CLI: pdfcpu first, MuPDF as fallback.
func Default() Counter {
	return Chain{NewPDFCPU(), NewFitz()}
}

// looksLikePDF checks for the %PDF- header within the first KiB, which is
// where readers tolerate leading garbage.
func looksLikePDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}
