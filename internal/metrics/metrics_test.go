package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutcome(t *testing.T) {
	if got := Outcome(nil); got != ResultOK {
		t.Errorf("Outcome(nil) = %q", got)
	}
	if got := Outcome(errors.New("x")); got != ResultError {
		t.Errorf("Outcome(err) = %q", got)
	}
}

func TestCommandsTotal(t *testing.T) {
	before := testutil.ToFloat64(CommandsTotal.WithLabelValues("badge", "success"))
	CommandsTotal.WithLabelValues("badge", "success").Inc()
	after := testutil.ToFloat64(CommandsTotal.WithLabelValues("badge", "success"))
	if after-before != 1 {
		t.Fatalf("counter moved by %v, want 1", after-before)
	}
}

func TestHandler(t *testing.T) {
	BadgesIssued.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "nari_badges_issued_total") {
		t.Fatal("metrics output missing nari_badges_issued_total")
	}
}
