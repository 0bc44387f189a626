package natsadapter

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/meetpoint/internal/core/domain"
)

type fakeMsg struct {
	acked, naked, termed int
}

func (m *fakeMsg) Ack(...nats.AckOpt) error  { m.acked++; return nil }
func (m *fakeMsg) Nak(...nats.AckOpt) error  { m.naked++; return nil }
func (m *fakeMsg) Term(...nats.AckOpt) error { m.termed++; return nil }

func TestSettle(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "ack"},
		{"oracle timeout", domain.Errorf(domain.CodeOracleTimeout, "", "slow"), "nak"},
		{"oracle server", domain.Errorf(domain.CodeOracleServer, "", "502"), "nak"},
		{"invalid input", domain.Errorf(domain.CodeInvalidInput, "", "bad"), "term"},
		{"rate limited", domain.Errorf(domain.CodeOracleRateLimited, "", "429"), "term"},
		{"untyped", errors.New("temporal unavailable"), "nak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMsg{}
			if got := settle(m, tt.err); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
			if m.acked+m.naked+m.termed != 1 {
				t.Errorf("expected exactly one settlement, got %+v", m)
			}
		})
	}
}

func TestSubjects(t *testing.T) {
	if got := ResultSubject("abc"); got != "meetpoint.results.abc" {
		t.Errorf("unexpected result subject %s", got)
	}
	if got := RequestSubject("abc"); got != "meetpoint.requests.abc" {
		t.Errorf("unexpected request subject %s", got)
	}
	for _, cfg := range streamConfigs() {
		if len(cfg.Subjects) != 1 || cfg.Subjects[0][len(cfg.Subjects[0])-1] != '>' {
			t.Errorf("stream %s should capture a wildcard subject, got %v", cfg.Name, cfg.Subjects)
		}
	}
}
