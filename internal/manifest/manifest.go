// Package manifest reads order descriptions from YAML files.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/local/copyshop/internal/order"
)

// Customer is the contact section of a manifest.
type Customer struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
	Email string `yaml:"email"`
	Note  string `yaml:"note,omitempty"`
	OptIn bool   `yaml:"opt_in"`
}

// Files references the documents for each slot. Each value is anything the
// source loader accepts: a path, an http(s) URL, or an s3:// or gs:// URL.
type Files struct {
	Material1 string `yaml:"material1,omitempty"`
	Material2 string `yaml:"material2,omitempty"`
	Material3 string `yaml:"material3,omitempty"`
	Proof     string `yaml:"proof,omitempty"`
}

// Order is a complete order manifest.
type Order struct {
	Customer Customer `yaml:"customer"`
	Files    Files    `yaml:"files"`
	Books    []string `yaml:"books,omitempty"`
}

// Load parses the manifest at path. Relative file paths are resolved
// against the manifest's directory.
func Load(path string) (*Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var o Order
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	o.resolve(filepath.Dir(path))
	return &o, nil
}

func (o *Order) resolve(dir string) {
	for _, p := range []*string{&o.Files.Material1, &o.Files.Material2, &o.Files.Material3, &o.Files.Proof} {
		*p = resolveRef(dir, strings.TrimSpace(*p))
	}
}

func resolveRef(dir, ref string) string {
	if ref == "" || strings.Contains(ref, "://") || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(dir, ref)
}

// Personal converts the customer section to draft fields.
func (o *Order) Personal() order.Personal {
	return order.Personal{
		Name:  strings.TrimSpace(o.Customer.Name),
		Phone: strings.TrimSpace(o.Customer.Phone),
		Email: strings.TrimSpace(o.Customer.Email),
		Note:  o.Customer.Note,
		OptIn: o.Customer.OptIn,
	}
}

// Refs returns the non-empty file references keyed by slot.
func (o *Order) Refs() map[order.Slot]string {
	refs := make(map[order.Slot]string, 4)
	for slot, ref := range map[order.Slot]string{
		order.Material1: o.Files.Material1,
		order.Material2: o.Files.Material2,
		order.Material3: o.Files.Material3,
		order.Proof:     o.Files.Proof,
	} {
		if ref != "" {
			refs[slot] = ref
		}
	}
	return refs
}
