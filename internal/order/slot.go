package order

import (
	"fmt"
	"strings"

	"github.com/local/copyshop/internal/filetype"
)

// Slot identifies one of the upload positions of an order.
type Slot int

const (
	Material1 Slot = iota
	Material2
	Material3
	Proof

	slotCount = 4
)

// Slots lists every slot in payload order.
var Slots = [slotCount]Slot{Material1, Material2, Material3, Proof}

// Materials lists the slots whose page counts are priced.
var Materials = [3]Slot{Material1, Material2, Material3}

var fieldNames = [slotCount]string{
	"materialImprimir1File",
	"materialImprimir2File",
	"materialImprimir3File",
	"comprobanteFile",
}

// FieldName is the multipart field the order service expects for the slot.
func (s Slot) FieldName() string {
	if !s.Valid() {
		return ""
	}
	return fieldNames[s]
}

func (s Slot) String() string {
	switch s {
	case Material1, Material2, Material3:
		return fmt.Sprintf("material%d", int(s)+1)
	case Proof:
		return "proof"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

func (s Slot) Valid() bool { return s >= Material1 && s <= Proof }

// IsMaterial reports whether the slot holds printable material.
func (s Slot) IsMaterial() bool { return s >= Material1 && s <= Material3 }

// Kind is the label used in logs and metrics.
func (s Slot) Kind() string {
	if s.IsMaterial() {
		return "material"
	}
	return "proof"
}

// Accepts reports whether a declared content type may be assigned to the slot.
// Materials take PDF only; the proof of payment also takes JPEG and PNG.
func (s Slot) Accepts(contentType string) bool {
	switch {
	case s.IsMaterial():
		return filetype.IsPDF(contentType)
	case s == Proof:
		return filetype.IsPDF(contentType) || filetype.IsImage(contentType)
	}
	return false
}

// ParseSlot accepts "material1".."material3", "proof" or the wire field name.
func ParseSlot(name string) (Slot, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, s := range Slots {
		if n == s.String() || n == strings.ToLower(s.FieldName()) {
			return s, nil
		}
	}
	if n == "comprobante" {
		return Proof, nil
	}
	return 0, fmt.Errorf("unknown slot %q", name)
}

// File is a user-selected file held in memory.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// SlotStatus is the state of a slot: Empty, Attached (proof), Resolving or Resolved.
type SlotStatus int

const (
	StatusEmpty SlotStatus = iota
	StatusAttached
	StatusResolving
	StatusResolved
)

func (s SlotStatus) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusAttached:
		return "attached"
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	}
	return "unknown"
}

// FileSlot is the current value of a slot. Pages is only meaningful when
// Status is StatusResolved; a resolved slot with zero pages means the
// document could not be analyzed.
type FileSlot struct {
	Slot   Slot
	File   *File
	Name   string
	Size   int64
	Status SlotStatus
	Pages  int

	token string
}

func emptySlot(s Slot) FileSlot { return FileSlot{Slot: s} }

// Analyzing is true while a page-count resolution is outstanding.
func (f FileSlot) Analyzing() bool { return f.Status == StatusResolving }

// IsEmpty reports whether no file is assigned.
func (f FileSlot) IsEmpty() bool { return f.File == nil }

// Unreadable reports a material that settled without a usable page count.
func (f FileSlot) Unreadable() bool {
	return f.Slot.IsMaterial() && f.Status == StatusResolved && f.Pages == 0
}

// PricedPages is the page count that contributes to the printing cost.
func (f FileSlot) PricedPages() int {
	if f.Status != StatusResolved || f.Pages < 0 {
		return 0
	}
	return f.Pages
}
