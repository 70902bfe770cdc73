package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/local/copyshop/internal/order"
)

const sample = `
customer:
  name: "  Ana Pérez "
  phone: "11 5555-0000"
  email: ana@example.com
  note: anillado, doble faz
  opt_in: true
files:
  material1: apuntes/tp1.pdf
  material3: https://example.com/tp3.pdf
  proof: s3://comprobantes/ana.png
books: [a, b]
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pedido.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	o, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := order.Personal{Name: "Ana Pérez", Phone: "11 5555-0000", Email: "ana@example.com", Note: "anillado, doble faz", OptIn: true}
	if got := o.Personal(); got != want {
		t.Errorf("Personal() = %+v, want %+v", got, want)
	}

	refs := o.Refs()
	if len(refs) != 3 {
		t.Fatalf("refs = %v", refs)
	}
	if got := refs[order.Material1]; got != filepath.Join(dir, "apuntes", "tp1.pdf") {
		t.Errorf("relative path not resolved: %q", got)
	}
	if got := refs[order.Material3]; got != "https://example.com/tp3.pdf" {
		t.Errorf("url changed: %q", got)
	}
	if got := refs[order.Proof]; got != "s3://comprobantes/ana.png" {
		t.Errorf("s3 ref changed: %q", got)
	}
	if _, ok := refs[order.Material2]; ok {
		t.Error("empty slot should be omitted")
	}
	if len(o.Books) != 2 || o.Books[0] != "a" {
		t.Errorf("books = %v", o.Books)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("customer: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected parse error")
	}
}
