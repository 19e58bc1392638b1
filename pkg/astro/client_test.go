package astro

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNatalChart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/natal-chart" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-123" {
			t.Errorf("api key not sent: %q", r.Header.Get("Authorization"))
		}

		var req ChartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Latitude != 51.5 {
			t.Errorf("latitude lost: %v", req.Latitude)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Chart{
			Placements: []Placement{{Body: "Sun", Sign: "Leo", Degree: 12.5, House: 10}},
			Ascendant:  184.2,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-123")
	chart, err := client.NatalChart(context.Background(), ChartRequest{
		Datetime:  time.Date(1990, 8, 5, 14, 30, 0, 0, time.UTC),
		Latitude:  51.5,
		Longitude: -0.12,
	})
	if err != nil {
		t.Fatalf("natal chart failed: %v", err)
	}
	if len(chart.Placements) != 1 || chart.Placements[0].Sign != "Leo" {
		t.Errorf("chart not decoded: %+v", chart)
	}
}

func TestNatalChartErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid coordinates", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.NatalChart(context.Background(), ChartRequest{})
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "invalid coordinates") {
		t.Errorf("error lacks status and body: %v", err)
	}
}
