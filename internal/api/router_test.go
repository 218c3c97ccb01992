package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"portfolio-enginev1/internal/engine"
	"portfolio-enginev1/internal/hub"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
)

func newTestRouter() (*http.ServeMux, *portfolio.Store) {
	store := portfolio.New()
	eng := engine.New(store, hub.New())
	return NewRouter(eng, nil), store
}

func TestInsertAndGetPosition(t *testing.T) {
	mux, _ := newTestRouter()

	body := `{"ticker":"005930","name":"Samsung","qty":100,"avg_price":70000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/positions/005930", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var p model.Position
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Ticker != "005930" || p.AvgPrice != 70000 {
		t.Errorf("position = %+v", p)
	}
}

func TestInsert_InvalidInput(t *testing.T) {
	mux, _ := newTestRouter()

	body := `{"ticker":"005930","name":"Bad","qty":1,"avg_price":-1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestGetPosition_NotFound(t *testing.T) {
	mux, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions/999999", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeletePosition(t *testing.T) {
	mux, store := newTestRouter()
	store.Insert("005930", "Samsung", 100, 70000)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/positions/005930", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	if store.Len() != 0 {
		t.Error("position still present after DELETE")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/positions/005930", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", rec.Code)
	}
}

func TestTickInjection(t *testing.T) {
	mux, store := newTestRouter()
	store.Insert("005930", "Samsung", 100, 70000)

	body := `[{"ticker":"005930","price":75000,"change_rate":2.5},{"ticker":"999999","price":1}]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ticks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Received int      `json:"received"`
		Applied  []string `json:"applied"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Received != 2 || len(resp.Applied) != 1 || resp.Applied[0] != "005930" {
		t.Errorf("resp = %+v", resp)
	}

	p, _ := store.Get("005930")
	if p.ProfitLoss != 500000 {
		t.Errorf("ProfitLoss = %d, want 500000", p.ProfitLoss)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	mux, store := newTestRouter()
	store.Insert("005930", "Samsung", 100, 70000)
	store.UpdatePrice("005930", 75000, 2.5)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summary", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sum model.Summary
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Count != 1 || sum.TotalProfit != 500000 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestListPositions(t *testing.T) {
	mux, store := newTestRouter()
	store.Insert("035420", "Naver", 30, 200000)
	store.Insert("005930", "Samsung", 100, 70000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/positions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var got []model.Position
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Ticker != "005930" {
		t.Errorf("positions = %+v", got)
	}
}
