package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"portfolio-enginev1/internal/model"
)

func TestInsertThenUpdate_DerivedFields(t *testing.T) {
	s := New()
	if err := s.Insert("005930", "Sample", 100, 70000); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err := s.UpdatePrice("005930", 75000, 2.5)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ok {
		t.Fatal("update returned false for known ticker")
	}

	p, found := s.Get("005930")
	if !found {
		t.Fatal("position not found after insert")
	}
	if p.LastPrice != 75000 || p.ChangeRate != 2.5 {
		t.Errorf("price fields = (%d, %v), want (75000, 2.5)", p.LastPrice, p.ChangeRate)
	}
	if math.Abs(p.ProfitRate-7.142857142857142) > 1e-9 {
		t.Errorf("ProfitRate = %v, want ~7.142857", p.ProfitRate)
	}
	if p.ProfitLoss != 500000 {
		t.Errorf("ProfitLoss = %d, want 500000", p.ProfitLoss)
	}
}

func TestInsert_ZeroCostBasis(t *testing.T) {
	s := New()
	s.Insert("000000", "Free", 10, 0)
	s.UpdatePrice("000000", 5000, 0)

	p, _ := s.Get("000000")
	if p.ProfitRate != 0 {
		t.Errorf("ProfitRate = %v, want 0 for zero cost basis", p.ProfitRate)
	}
	if p.ProfitLoss != 50000 {
		t.Errorf("ProfitLoss = %d, want 50000", p.ProfitLoss)
	}
}

func TestInsert_DuplicateOverwrites(t *testing.T) {
	s := New()
	s.Insert("005930", "Old", 10, 100)
	s.Insert("005930", "New", 20, 200)

	p, _ := s.Get("005930")
	if p.Name != "New" || p.Qty != 20 || p.AvgPrice != 200 {
		t.Errorf("duplicate insert did not overwrite: %+v", p)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestInsert_InvalidInput(t *testing.T) {
	s := New()
	if err := s.Insert("", "NoTicker", 1, 100); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty ticker: err = %v, want ErrInvalidInput", err)
	}
	if err := s.Insert("005930", "Neg", 1, -100); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative avg price: err = %v, want ErrInvalidInput", err)
	}
	if s.Len() != 0 {
		t.Errorf("rejected inserts must not be stored, Len = %d", s.Len())
	}
}

func TestUpdate_UnknownTicker(t *testing.T) {
	s := New()
	s.Insert("005930", "Sample", 100, 70000)

	ok, err := s.UpdatePrice("999999", 1000, 0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Error("update on unknown ticker returned true")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1 (update must not create records)", s.Len())
	}
}

func TestUpdate_NegativePrice(t *testing.T) {
	s := New()
	s.Insert("005930", "Sample", 100, 70000)

	ok, err := s.UpdatePrice("005930", -1, 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if ok {
		t.Error("invalid update must not apply")
	}
	p, _ := s.Get("005930")
	if p.LastPrice != 0 {
		t.Errorf("LastPrice = %d, want 0 (unchanged)", p.LastPrice)
	}
}

func TestBatchUpdate_SkipsUnknownAndInvalid(t *testing.T) {
	s := New()
	s.Insert("005930", "A", 100, 70000)
	s.Insert("000660", "B", 50, 120000)

	applied := s.BatchUpdate([]model.Tick{
		{Ticker: "005930", Price: 75000, ChangeRate: 2.5},
		{Ticker: "999999", Price: 1000}, // unknown — skipped
		{Ticker: "000660", Price: -5},   // invalid — skipped
		{Ticker: "000660", Price: 118000, ChangeRate: -1.2},
	})

	if len(applied) != 2 {
		t.Fatalf("applied = %v, want 2 entries", applied)
	}
	if applied[0] != "005930" || applied[1] != "000660" {
		t.Errorf("applied order = %v", applied)
	}

	a, _ := s.Get("005930")
	b, _ := s.Get("000660")
	if a.LastPrice != 75000 {
		t.Errorf("005930 LastPrice = %d, want 75000", a.LastPrice)
	}
	if b.LastPrice != 118000 {
		t.Errorf("000660 LastPrice = %d, want 118000", b.LastPrice)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestGet_ReturnsSnapshotCopy(t *testing.T) {
	s := New()
	s.Insert("005930", "Sample", 100, 70000)

	p, _ := s.Get("005930")
	p.LastPrice = 999999 // mutate the copy

	fresh, _ := s.Get("005930")
	if fresh.LastPrice != 0 {
		t.Error("mutating a returned snapshot leaked into the store")
	}
}

func TestPositions_SortedAndIdempotent(t *testing.T) {
	s := New()
	s.Insert("035420", "C", 30, 200000)
	s.Insert("005930", "A", 100, 70000)
	s.Insert("000660", "B", 50, 120000)

	first := s.Positions()
	second := s.Positions()

	if len(first) != 3 {
		t.Fatalf("len = %d, want 3", len(first))
	}
	for i, want := range []string{"000660", "005930", "035420"} {
		if first[i].Ticker != want {
			t.Errorf("positions[%d] = %s, want %s", i, first[i].Ticker, want)
		}
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("repeated enumeration differs at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSummary_Empty(t *testing.T) {
	s := New()
	sum := s.Summary()
	if sum.TotalCost != 0 || sum.TotalValue != 0 || sum.TotalProfit != 0 || sum.TotalReturn != 0 || sum.Count != 0 {
		t.Errorf("empty summary = %+v, want all zeros", sum)
	}
}

func TestSummary_Totals(t *testing.T) {
	s := New()
	s.Insert("005930", "A", 100, 70000)
	s.Insert("000660", "B", 50, 120000)
	s.BatchUpdate([]model.Tick{
		{Ticker: "005930", Price: 75000},
		{Ticker: "000660", Price: 118000},
	})

	sum := s.Summary()
	wantCost := int64(100*70000 + 50*120000)  // 13_000_000
	wantValue := int64(100*75000 + 50*118000) // 13_400_000
	if sum.TotalCost != wantCost {
		t.Errorf("TotalCost = %d, want %d", sum.TotalCost, wantCost)
	}
	if sum.TotalValue != wantValue {
		t.Errorf("TotalValue = %d, want %d", sum.TotalValue, wantValue)
	}
	if sum.TotalProfit != wantValue-wantCost {
		t.Errorf("TotalProfit = %d, want %d", sum.TotalProfit, wantValue-wantCost)
	}
	wantReturn := (float64(wantValue)/float64(wantCost) - 1) * 100
	if math.Abs(sum.TotalReturn-wantReturn) > 1e-9 {
		t.Errorf("TotalReturn = %v, want %v", sum.TotalReturn, wantReturn)
	}
	if sum.Count != 2 {
		t.Errorf("Count = %d, want 2", sum.Count)
	}
}

func TestRemove(t *testing.T) {
	s := New()
	s.Insert("005930", "A", 100, 70000)

	if !s.Remove("005930") {
		t.Error("Remove returned false for known ticker")
	}
	if s.Remove("005930") {
		t.Error("Remove returned true for absent ticker")
	}
	if _, ok := s.Get("005930"); ok {
		t.Error("position still present after Remove")
	}
}

func TestConcurrentUpdates_DisjointTickers(t *testing.T) {
	s := New()
	const n = 64
	for i := 0; i < n; i++ {
		s.Insert(fmt.Sprintf("%06d", i), "Stock", 100, 50000)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticker := fmt.Sprintf("%06d", i)
			for j := 0; j < 200; j++ {
				if _, err := s.UpdatePrice(ticker, int64(50000+i), 0.1); err != nil {
					t.Errorf("update %s: %v", ticker, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		ticker := fmt.Sprintf("%06d", i)
		p, ok := s.Get(ticker)
		if !ok {
			t.Fatalf("%s missing after concurrent updates", ticker)
		}
		if p.LastPrice != int64(50000+i) {
			t.Errorf("%s LastPrice = %d, want %d (lost update)", ticker, p.LastPrice, 50000+i)
		}
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := New()
	s.Insert("005930", "Sample", 100, 70000)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.BatchUpdate([]model.Tick{{Ticker: "005930", Price: int64(70000 + i)}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			p, ok := s.Get("005930")
			if !ok {
				t.Error("position vanished during reads")
				return
			}
			// Derived fields must always match the snapshot's own price.
			wantRate, wantPL := model.Derive(p.AvgPrice, p.LastPrice, p.Qty)
			if p.ProfitRate != wantRate || p.ProfitLoss != wantPL {
				t.Errorf("dirty read: %+v", p)
				return
			}
			_ = s.Summary()
		}
	}()
	wg.Wait()
}
