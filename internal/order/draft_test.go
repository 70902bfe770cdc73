package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeCounter returns canned page counts keyed by file content. A gate
// channel holds the resolution until the test closes it.
type fakeCounter struct {
	pages map[string]int
	errs  map[string]error
	gates map[string]chan struct{}
}

func (f *fakeCounter) CountPages(ctx context.Context, data []byte) (int, error) {
	k := string(data)
	if ch, ok := f.gates[k]; ok {
		<-ch
	}
	return f.pages[k], f.errs[k]
}

type alertRecorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *alertRecorder) Notify(a Alert) {
	r.mu.Lock()
	r.alerts = append(r.alerts, a)
	r.mu.Unlock()
}

func (r *alertRecorder) all() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

func pdf(name, content string) *File {
	return &File{Name: name, ContentType: "application/pdf", Size: int64(len(content)), Data: []byte(content)}
}

func newTestDraft(c *fakeCounter) (*Draft, *alertRecorder) {
	rec := &alertRecorder{}
	return NewDraft(Options{Pricing: DefaultPricing(), Counter: c, Notifier: rec}), rec
}

func settle(t *testing.T, d *Draft) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Settle(ctx); err != nil {
		t.Fatalf("Settle: %v", err)
	}
}

func TestSetFileMaterialResolves(t *testing.T) {
	gate := make(chan struct{})
	c := &fakeCounter{pages: map[string]int{"doc": 12}, gates: map[string]chan struct{}{"doc": gate}}
	d, rec := newTestDraft(c)

	fs, err := d.SetFile(context.Background(), Material1, pdf("apuntes.pdf", "doc"))
	if err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	if !fs.Analyzing() || fs.Pages != 0 || fs.Name != "apuntes.pdf" || fs.Size != 3 {
		t.Fatalf("unexpected intermediate slot: %+v", fs)
	}
	if cur := d.Slot(Material1); !cur.Analyzing() {
		t.Fatalf("slot should be resolving, got %v", cur.Status)
	}
	if !d.Snapshot().Pending() {
		t.Error("snapshot should report pending analysis")
	}

	close(gate)
	settle(t, d)

	got := d.Slot(Material1)
	if got.Status != StatusResolved || got.Pages != 12 || got.Analyzing() {
		t.Fatalf("resolved slot = %+v", got)
	}
	if tot := d.Totals(); tot.PrintingCost != 480 || tot.AmountDue != 240 {
		t.Errorf("totals = %+v", tot)
	}
	if len(rec.all()) != 0 {
		t.Errorf("unexpected alerts: %+v", rec.all())
	}
}

func TestSetFileRejectsWrongTypeAndKeepsPrevious(t *testing.T) {
	c := &fakeCounter{pages: map[string]int{"doc": 3}}
	d, rec := newTestDraft(c)

	if _, err := d.SetFile(context.Background(), Material2, pdf("a.pdf", "doc")); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	settle(t, d)
	before := d.Slot(Material2)

	fs, err := d.SetFile(context.Background(), Material2, &File{Name: "foto.png", ContentType: "image/png", Data: []byte("png")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Slot != Material2 || verr.Message != MsgMaterialType {
		t.Errorf("validation error = %+v", verr)
	}
	if fs != before || d.Slot(Material2) != before {
		t.Errorf("slot changed after rejection: %+v -> %+v", before, d.Slot(Material2))
	}

	alerts := rec.all()
	if len(alerts) != 1 || alerts[0].Kind != AlertDanger || alerts[0].Message != MsgMaterialType {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestSetFileRejectOnEmptySlotLeavesItEmpty(t *testing.T) {
	d, _ := newTestDraft(&fakeCounter{})
	_, err := d.SetFile(context.Background(), Material3, &File{Name: "x.docx", ContentType: "application/msword", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := d.Slot(Material3); !got.IsEmpty() || got.Status != StatusEmpty {
		t.Errorf("slot = %+v, want empty", got)
	}
}

func TestProofAcceptance(t *testing.T) {
	tests := []struct {
		contentType string
		ok          bool
	}{
		{"application/pdf", true},
		{"image/jpeg", true},
		{"image/jpg", true},
		{"image/png", true},
		{"image/gif", false},
		{"text/plain", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			d, _ := newTestDraft(&fakeCounter{})
			fs, err := d.SetFile(context.Background(), Proof, &File{Name: "comprobante", ContentType: tt.contentType, Data: []byte("x")})
			if tt.ok {
				if err != nil {
					t.Fatalf("SetFile: %v", err)
				}
				if fs.Status != StatusAttached || fs.Analyzing() || fs.Pages != 0 {
					t.Errorf("proof slot = %+v", fs)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Message != MsgProofType {
				t.Fatalf("err = %v, want proof validation error", err)
			}
		})
	}
}

func TestProofDoesNotAffectTotals(t *testing.T) {
	d, _ := newTestDraft(&fakeCounter{pages: map[string]int{"receipt": 50}})
	if _, err := d.SetFile(context.Background(), Proof, pdf("receipt.pdf", "receipt")); err != nil {
		t.Fatal(err)
	}
	settle(t, d)
	if !d.Totals().IsZero() {
		t.Errorf("proof was priced: %+v", d.Totals())
	}
}

func TestClearSlot(t *testing.T) {
	d, _ := newTestDraft(&fakeCounter{pages: map[string]int{"doc": 8}})
	if _, err := d.SetFile(context.Background(), Material1, pdf("a.pdf", "doc")); err != nil {
		t.Fatal(err)
	}
	settle(t, d)

	fs, err := d.SetFile(context.Background(), Material1, nil)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !fs.IsEmpty() || fs.Pages != 0 || fs.Analyzing() || fs.Status != StatusEmpty || fs.Name != "" {
		t.Errorf("cleared slot = %+v", fs)
	}
	if !d.Totals().IsZero() {
		t.Errorf("totals after clear = %+v", d.Totals())
	}
}

func TestAnalysisFailuresKeepFile(t *testing.T) {
	boom := errors.New("xref table broken")
	c := &fakeCounter{
		pages: map[string]int{"empty": 0},
		errs:  map[string]error{"broken": boom},
	}

	tests := []struct {
		name    string
		content string
		message string
		wantErr error
	}{
		{"zero pages", "empty", MsgPagesUnknown, nil},
		{"counter error", "broken", MsgAnalysisFailed, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, rec := newTestDraft(c)
			if _, err := d.SetFile(context.Background(), Material1, pdf("bad.pdf", tt.content)); err != nil {
				t.Fatalf("SetFile: %v", err)
			}
			settle(t, d)

			got := d.Slot(Material1)
			if got.IsEmpty() || got.Status != StatusResolved || got.Pages != 0 || !got.Unreadable() {
				t.Errorf("slot = %+v", got)
			}

			alerts := rec.all()
			if len(alerts) != 1 || alerts[0].Message != tt.message {
				t.Fatalf("alerts = %+v", alerts)
			}
			var aerr *AnalysisError
			if !errors.As(alerts[0].Err, &aerr) || aerr.Slot != Material1 {
				t.Fatalf("alert error = %v", alerts[0].Err)
			}
			if tt.wantErr != nil && !errors.Is(aerr, tt.wantErr) {
				t.Errorf("analysis error does not wrap %v", tt.wantErr)
			}
		})
	}
}

func TestSupersededResolutionIsIgnored(t *testing.T) {
	slow := make(chan struct{})
	c := &fakeCounter{
		pages: map[string]int{"old": 100, "new": 2},
		gates: map[string]chan struct{}{"old": slow},
	}
	d, _ := newTestDraft(c)

	if _, err := d.SetFile(context.Background(), Material1, pdf("old.pdf", "old")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SetFile(context.Background(), Material1, pdf("new.pdf", "new")); err != nil {
		t.Fatal(err)
	}

	// wait for the newer file to settle while the older one is still blocked
	deadline := time.Now().Add(2 * time.Second)
	for d.Slot(Material1).Analyzing() {
		if time.Now().After(deadline) {
			t.Fatal("newer file never resolved")
		}
		time.Sleep(time.Millisecond)
	}

	close(slow)
	settle(t, d)

	got := d.Slot(Material1)
	if got.Name != "new.pdf" || got.Pages != 2 {
		t.Errorf("slot = %+v, want new.pdf with 2 pages", got)
	}
	if d.Totals().TotalPages != 2 {
		t.Errorf("totals = %+v", d.Totals())
	}
}

func TestClearWhileResolving(t *testing.T) {
	gate := make(chan struct{})
	c := &fakeCounter{pages: map[string]int{"doc": 9}, gates: map[string]chan struct{}{"doc": gate}}
	d, _ := newTestDraft(c)

	if _, err := d.SetFile(context.Background(), Material3, pdf("a.pdf", "doc")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SetFile(context.Background(), Material3, nil); err != nil {
		t.Fatal(err)
	}
	close(gate)
	settle(t, d)

	if got := d.Slot(Material3); !got.IsEmpty() || got.Pages != 0 {
		t.Errorf("late resolution overwrote a cleared slot: %+v", got)
	}
}

func TestIndependentSlotsScenario(t *testing.T) {
	gates := map[string]chan struct{}{"one": make(chan struct{}), "three": make(chan struct{})}
	c := &fakeCounter{pages: map[string]int{"one": 10, "three": 5}, gates: gates}
	d, _ := newTestDraft(c)

	ctx := context.Background()
	if _, err := d.SetFile(ctx, Material1, pdf("1.pdf", "one")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.SetFile(ctx, Material3, pdf("3.pdf", "three")); err != nil {
		t.Fatal(err)
	}

	// the third slot resolves first
	close(gates["three"])
	deadline := time.Now().Add(2 * time.Second)
	for d.Slot(Material3).Analyzing() {
		if time.Now().After(deadline) {
			t.Fatal("material3 never resolved")
		}
		time.Sleep(time.Millisecond)
	}
	if got := d.Slot(Material1); !got.Analyzing() {
		t.Errorf("material1 should still be resolving, got %+v", got)
	}
	if tot := d.Totals(); tot.TotalPages != 5 {
		t.Errorf("partial totals = %+v", tot)
	}

	close(gates["one"])
	settle(t, d)

	want := Totals{TotalPages: 15, PrintingCost: 600, BookCost: 0, GrandTotal: 600, AmountDue: 300}
	if got := d.Totals(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}
}

func TestContentTypeSniffedWhenMissing(t *testing.T) {
	d, _ := newTestDraft(&fakeCounter{pages: map[string]int{"%PDF-1.4\n": 1}})
	f := &File{Name: "scan", Data: []byte("%PDF-1.4\n")}
	if _, err := d.SetFile(context.Background(), Material1, f); err != nil {
		t.Fatalf("undeclared pdf rejected: %v", err)
	}
	settle(t, d)
	if d.Slot(Material1).Pages != 1 {
		t.Errorf("slot = %+v", d.Slot(Material1))
	}
}

func TestInvalidSlot(t *testing.T) {
	d, _ := newTestDraft(&fakeCounter{})
	if _, err := d.SetFile(context.Background(), Slot(9), pdf("a.pdf", "x")); err == nil {
		t.Error("expected error for invalid slot")
	}
}

func TestBookSelection(t *testing.T) {
	d, _ := newTestDraft(&fakeCounter{})

	d.SelectBook("a")
	d.SelectBook("a")
	d.SelectBook("b")
	if got := d.Snapshot().Selected; len(got) != 2 {
		t.Fatalf("selected = %v", got)
	}
	if !d.Totals().IsZero() {
		t.Errorf("books priced before catalog load: %+v", d.Totals())
	}

	d.SetCatalog(NewCatalog([]Book{{ID: "a", Price: 1000}, {ID: "b", Price: 500}}))
	want := Totals{BookCost: 1500, GrandTotal: 1500, AmountDue: 750}
	if got := d.Totals(); got != want {
		t.Errorf("totals = %+v, want %+v", got, want)
	}

	d.DeselectBook("a")
	if got := d.Totals(); got.BookCost != 500 || got.AmountDue != 250 {
		t.Errorf("after deselect = %+v", got)
	}
	if got := d.Snapshot().Selected; len(got) != 1 || got[0] != "b" {
		t.Errorf("selected = %v", got)
	}
}

func TestResetKeepsCatalog(t *testing.T) {
	d, _ := newTestDraft(&fakeCounter{pages: map[string]int{"doc": 4}})
	d.SetCatalog(NewCatalog([]Book{{ID: "a", Price: 10}}))
	d.SetPersonal(Personal{Name: "Ana", Email: "ana@example.com", OptIn: true})
	d.SelectBook("a")
	if _, err := d.SetFile(context.Background(), Material1, pdf("a.pdf", "doc")); err != nil {
		t.Fatal(err)
	}
	settle(t, d)

	d.Reset()

	s := d.Snapshot()
	if s.Personal != (Personal{}) || len(s.Selected) != 0 || !s.Totals.IsZero() {
		t.Errorf("draft not reset: %+v", s)
	}
	for _, slot := range Slots {
		if !s.Slot(slot).IsEmpty() {
			t.Errorf("%s not cleared", slot)
		}
	}
	if s.Catalog.Len() != 1 {
		t.Error("reset dropped the session catalog")
	}
}

func TestSettleWhileAttaching(t *testing.T) {
	c := &fakeCounter{pages: map[string]int{"doc": 3}}
	d, _ := newTestDraft(c)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := d.SetFile(context.Background(), Material1, pdf("a.pdf", "doc")); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := d.Settle(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	settle(t, d)

	if got := d.Slot(Material1); got.Analyzing() || got.Pages != 3 {
		t.Errorf("slot = %+v, want resolved with 3 pages", got)
	}
}

func TestSettleWaitsForLateAttach(t *testing.T) {
	first, second := make(chan struct{}), make(chan struct{})
	c := &fakeCounter{
		pages: map[string]int{"one": 1, "two": 2},
		gates: map[string]chan struct{}{"one": first, "two": second},
	}
	d, _ := newTestDraft(c)

	if _, err := d.SetFile(context.Background(), Material1, pdf("one.pdf", "one")); err != nil {
		t.Fatal(err)
	}
	settled := make(chan error, 1)
	go func() { settled <- d.Settle(context.Background()) }()

	if _, err := d.SetFile(context.Background(), Material2, pdf("two.pdf", "two")); err != nil {
		t.Fatal(err)
	}
	close(first)
	select {
	case err := <-settled:
		t.Fatalf("Settle returned %v with material 2 still resolving", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(second)
	select {
	case err := <-settled:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Settle never returned")
	}
	if d.Totals().TotalPages != 3 {
		t.Errorf("totals = %+v", d.Totals())
	}
}
