package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetConnectionStatus(t *testing.T) {
	all := []string{"disconnected", "connecting", "connected", "error"}

	SetConnectionStatus("connecting", all...)
	SetConnectionStatus("connected", all...)

	for _, s := range all {
		want := 0.0
		if s == "connected" {
			want = 1
		}
		if got := testutil.ToFloat64(ConnectionStatus.WithLabelValues(s)); got != want {
			t.Errorf("status %s: got %v want %v", s, got, want)
		}
	}
}
