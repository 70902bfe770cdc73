package order

// Book is an entry of the shop's public book catalog.
type Book struct {
	ID    string
	Title string
	Price float64
}

// Catalog is the read-only list of purchasable books loaded once per session.
type Catalog struct {
	books []Book
	byID  map[string]Book
}

// NewCatalog indexes books by id. Negative prices are treated as zero and
// the first entry wins when an id repeats.
func NewCatalog(books []Book) Catalog {
	c := Catalog{
		books: make([]Book, 0, len(books)),
		byID:  make(map[string]Book, len(books)),
	}
	for _, b := range books {
		if b.ID == "" {
			continue
		}
		if _, dup := c.byID[b.ID]; dup {
			continue
		}
		if b.Price < 0 {
			b.Price = 0
		}
		c.books = append(c.books, b)
		c.byID[b.ID] = b
	}
	return c
}

func (c Catalog) Lookup(id string) (Book, bool) {
	b, ok := c.byID[id]
	return b, ok
}

func (c Catalog) Books() []Book {
	out := make([]Book, len(c.books))
	copy(out, c.books)
	return out
}

func (c Catalog) Len() int { return len(c.books) }
