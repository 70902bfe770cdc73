package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/local/copyshop/internal/order"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// formatSize renders a byte count with up to two decimals, e.g. "1.5 KB".
func formatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}

// formatMoney renders an amount the way the shop quotes prices: a dollar
// sign, dot-grouped thousands and, only when needed, a decimal comma with
// up to three digits and no trailing zeros (es-AR locale formatting).
func formatMoney(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := math.Floor(v)
	milli := math.Round((v - whole) * 1000)
	if milli == 1000 {
		whole++
		milli = 0
	}

	digits := strconv.FormatFloat(whole, 'f', 0, 64)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if milli > 0 {
		b.WriteByte(',')
		b.WriteString(strings.TrimRight(fmt.Sprintf("%03d", int(milli)), "0"))
	}

	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

func slotLabel(s order.Slot) string {
	if s == order.Proof {
		return "Comprobante"
	}
	return fmt.Sprintf("Material %d", int(s)+1)
}

func slotState(fs order.FileSlot) string {
	switch {
	case fs.IsEmpty():
		return "-"
	case fs.Analyzing():
		return "analizando..."
	case fs.Unreadable():
		return "páginas desconocidas"
	case fs.Slot.IsMaterial():
		return fmt.Sprintf("%d páginas", fs.Pages)
	default:
		return "adjunto"
	}
}

// printSummary writes the files table and, when anything is priced, the
// cost breakdown.
func printSummary(w io.Writer, snap order.Snapshot, pricePerPage float64) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, slot := range order.Slots {
		fs := snap.Slot(slot)
		if fs.IsEmpty() {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\t%s\t%s\n", slotLabel(slot), fs.Name, formatSize(fs.Size), slotState(fs))
	}
	tw.Flush()

	if snap.Totals.IsZero() {
		return
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total páginas:\t%d páginas\n", snap.Totals.TotalPages)
	fmt.Fprintf(tw, "Precio por página:\t%s\n", formatMoney(pricePerPage))
	fmt.Fprintf(tw, "Costo impresión:\t%s\n", formatMoney(snap.Totals.PrintingCost))
	if snap.Totals.BookCost > 0 {
		fmt.Fprintf(tw, "Costo libros:\t%s\n", formatMoney(snap.Totals.BookCost))
	}
	fmt.Fprintf(tw, "Total a abonar:\t%s\n", formatMoney(snap.Totals.GrandTotal))
	fmt.Fprintf(tw, "Transferir:\t%s\n", formatMoney(snap.Totals.AmountDue))
	tw.Flush()
}

func printCatalog(w io.Writer, books []order.Book) {
	if len(books) == 0 {
		fmt.Fprintln(w, "No hay libros disponibles.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTÍTULO\tPRECIO")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Title, formatMoney(b.Price))
	}
	tw.Flush()
}

// alertPrinter prints user-facing alerts. Page counts report from their own
// goroutines, so writes are serialized.
type alertPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *alertPrinter) Notify(a order.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark := "✖"
	if a.Kind == order.AlertSuccess {
		mark = "✔"
	}
	fmt.Fprintf(p.w, "%s %s\n", mark, a.Message)
}
