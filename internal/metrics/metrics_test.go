package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue はレジストリから指定メトリクスのカウンタ値を取り出す。
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}

	t.Fatalf("%s metric not found", name)
	return 0
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRequest_IncrementsCounterPerStatusCode はステータスコード別の
// リクエストカウンタが増加することを検証する。
func TestRecordRequest_IncrementsCounterPerStatusCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest(200)
	c.RecordRequest(200)
	c.RecordRequest(500)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() != "catman_api_requests_total" {
			continue
		}
		found = true
		if len(mf.GetMetric()) != 2 {
			t.Fatalf("ラベル数 = %d, want 2 (200と500)", len(mf.GetMetric()))
		}
		for _, m := range mf.GetMetric() {
			code := m.GetLabel()[0].GetValue()
			val := m.GetCounter().GetValue()
			switch code {
			case "200":
				if val != 2 {
					t.Errorf("api_requests_total{status_code=200} = %v, want 2", val)
				}
			case "500":
				if val != 1 {
					t.Errorf("api_requests_total{status_code=500} = %v, want 1", val)
				}
			default:
				t.Errorf("unexpected status_code label: %s", code)
			}
		}
	}
	if !found {
		t.Error("catman_api_requests_total metric not found")
	}
}

func TestRecordForcedLogout_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordForcedLogout()

	if val := counterValue(t, reg, "catman_forced_logouts_total"); val != 1 {
		t.Errorf("forced_logouts_total = %v, want 1", val)
	}
}

func TestRecordDownload_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDownload()
	c.RecordDownload()

	if val := counterValue(t, reg, "catman_downloads_total"); val != 2 {
		t.Errorf("downloads_total = %v, want 2", val)
	}
}

func TestRecordPollCycle_IncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPollCycle(150 * time.Millisecond)

	if val := counterValue(t, reg, "catman_whatsapp_poll_cycles_total"); val != 1 {
		t.Errorf("poll_cycles_total = %v, want 1", val)
	}

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == "catman_whatsapp_poll_latency_seconds" {
			if mf.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
				t.Error("poll_latency histogram のサンプル数が1ではない")
			}
		}
	}
}

func TestRecordPollError_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPollError()

	if val := counterValue(t, reg, "catman_whatsapp_poll_errors_total"); val != 1 {
		t.Errorf("poll_errors_total = %v, want 1", val)
	}
}

// TestHandler_ServesPrometheusFormat は/metricsハンドラーがPrometheus形式で
// 登録済みメトリクスを公開することを検証する。
func TestHandler_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthFailure()

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("metrics endpoint へのリクエストに失敗した: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "catman_auth_failures_total 1") {
		t.Error("レスポンスに catman_auth_failures_total 1 が含まれていない")
	}
}
