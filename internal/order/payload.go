package order

import (
	"encoding/json"
	"strconv"

	"github.com/local/copyshop/internal/filetype"
)

// Form field names of the create-order endpoint.
const (
	FieldName          = "nombreApellido"
	FieldPhone         = "telefono"
	FieldEmail         = "email"
	FieldNote          = "textoNecesario"
	FieldPrintingCost  = "costoImpresion"
	FieldBookCost      = "costoLibros"
	FieldGrandTotal    = "costoTotal"
	FieldAmountDue     = "montoAbonar"
	FieldOptIn         = "recibirInformacion"
	FieldSelectedBooks = "librosSeleccionados"
)

// Field is a text part of the submission.
type Field struct {
	Name  string
	Value string
}

// Attachment is a file part of the submission.
type Attachment struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// Payload is the multipart body of a submission, in wire order.
type Payload struct {
	Fields      []Field
	Attachments []Attachment
}

// Value returns the first text field with the given name.
func (p Payload) Value(name string) (string, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Assemble builds the submission payload from a draft snapshot. The selected
// books are included only when the selection is non-empty, and each slot
// holding a file contributes one attachment.
func Assemble(s Snapshot) Payload {
	t := s.Totals
	p := Payload{
		Fields: []Field{
			{FieldName, s.Personal.Name},
			{FieldPhone, s.Personal.Phone},
			{FieldEmail, s.Personal.Email},
			{FieldNote, s.Personal.Note},
			{FieldPrintingCost, formatAmount(t.PrintingCost)},
			{FieldBookCost, formatAmount(t.BookCost)},
			{FieldGrandTotal, formatAmount(t.GrandTotal)},
			{FieldAmountDue, formatAmount(t.AmountDue)},
			{FieldOptIn, strconv.FormatBool(s.Personal.OptIn)},
		},
	}

	if len(s.Selected) > 0 {
		// a []string always marshals
		b, _ := json.Marshal(s.Selected)
		p.Fields = append(p.Fields, Field{FieldSelectedBooks, string(b)})
	}

	for _, slot := range Slots {
		fs := s.Slots[slot]
		if fs.IsEmpty() {
			continue
		}
		ct := filetype.Normalize(fs.File.ContentType)
		if ct == "" {
			ct = "application/octet-stream"
		}
		p.Attachments = append(p.Attachments, Attachment{
			FieldName:   slot.FieldName(),
			FileName:    fs.Name,
			ContentType: ct,
			Data:        fs.File.Data,
		})
	}
	return p
}

// formatAmount renders the shortest decimal form: 600, 1500.5.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
