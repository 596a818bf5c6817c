package mqttclient

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestTopics(t *testing.T) {
	tests := []struct {
		prefix     string
		wantRun    string
		wantStatus string
	}{
		{"clab", "clab/runs/240101120000_u1", "clab/status"},
		{"/lab/stt/", "lab/stt/runs/240101120000_u1", "lab/stt/status"},
		{"  ", "clab/runs/240101120000_u1", "clab/status"},
	}
	for _, tt := range tests {
		t.Run(tt.wantStatus, func(t *testing.T) {
			c := &Client{prefix: normalizePrefix(tt.prefix), log: zerolog.Nop()}
			if got := c.RunTopic("240101120000_u1"); got != tt.wantRun {
				t.Errorf("RunTopic = %q, want %q", got, tt.wantRun)
			}
			if got := c.StatusTopic(); got != tt.wantStatus {
				t.Errorf("StatusTopic = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	c := &Client{prefix: "clab", log: zerolog.Nop()}
	if err := c.PublishRunEvent("r", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if c.Published() != 0 {
		t.Error("published count should stay 0")
	}
}
