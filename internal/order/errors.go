package order

import "fmt"

// User-facing texts shown by the order form.
const (
	MsgMaterialType   = "Solo se permiten archivos PDF para los materiales"
	MsgProofType      = "Solo se permiten archivos PDF, JPG o PNG para el comprobante"
	MsgPagesUnknown   = "No se pudo contar las páginas del PDF. Verifica que el archivo no esté dañado."
	MsgAnalysisFailed = "Error al analizar el PDF. Verifica que el archivo no esté dañado."
)

// ValidationError reports a file whose type is not accepted by the slot.
type ValidationError struct {
	Slot        Slot
	ContentType string
	Message     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s not accepted", e.Slot, e.ContentType)
}

// AnalysisError reports a material whose page count could not be resolved.
// Err is nil when the document opened but reported zero pages.
type AnalysisError struct {
	Slot    Slot
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis error: %s: document has no countable pages", e.Slot)
	}
	return fmt.Sprintf("analysis error: %s: %v", e.Slot, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// ConnectivityError reports a failed call to the order service.
type ConnectivityError struct {
	Op      string
	Message string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity error: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }
