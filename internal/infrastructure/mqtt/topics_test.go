package mqtt

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("/site/knx/")
	ga := knx.GroupAddress{Main: 1, Middle: 2, Sub: 3}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"telegram", topics.Telegram(ga), "site/knx/telegram/1/2/3"},
		{"state", topics.State(ga), "site/knx/state/1/2/3"},
		{"command", topics.Command(ga), "site/knx/command/1/2/3"},
		{"ack", topics.Ack(ga), "site/knx/ack/1/2/3"},
		{"individual", topics.Individual(knx.IndividualAddress{Area: 1, Line: 1, Member: 250}), "site/knx/individual/1/1/250"},
		{"status", topics.Status(), "site/knx/status"},
		{"health", topics.Health(), "site/knx/health"},
		{"all commands", topics.AllCommands(), "site/knx/command/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestTopics_DefaultPrefix(t *testing.T) {
	if got := NewTopics("").Status(); got != "knx/tpuart/status" {
		t.Errorf("NewTopics(\"\").Status() = %q", got)
	}
	if got := (Topics{}).Status(); got != "knx/tpuart/status" {
		t.Errorf("Topics{}.Status() = %q", got)
	}
}

func TestParseGroupTopic(t *testing.T) {
	topics := NewTopics("knx/tpuart")

	tests := []struct {
		name    string
		topic   string
		kind    string
		want    knx.GroupAddress
		wantErr bool
	}{
		{"command", "knx/tpuart/command/4/7/200", "command", knx.GroupAddress{Main: 4, Middle: 7, Sub: 200}, false},
		{"state", "knx/tpuart/state/0/0/1", "state", knx.GroupAddress{Sub: 1}, false},
		{"wrong kind", "knx/tpuart/state/1/2/3", "command", knx.GroupAddress{}, true},
		{"other prefix", "home/command/1/2/3", "command", knx.GroupAddress{}, true},
		{"too few levels", "knx/tpuart/command/1/2", "command", knx.GroupAddress{}, true},
		{"too many levels", "knx/tpuart/command/1/2/3/4", "command", knx.GroupAddress{}, true},
		{"not numeric", "knx/tpuart/command/a/2/3", "command", knx.GroupAddress{}, true},
		{"main out of range", "knx/tpuart/command/16/0/0", "command", knx.GroupAddress{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := topics.ParseGroupTopic(tt.topic, tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGroupTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if tt.wantErr {
				if errors.Is(err, ErrInvalidTopic) || errors.Is(err, knx.ErrInvalidGroupAddress) {
					return
				}
				t.Errorf("error = %v, want ErrInvalidTopic or knx.ErrInvalidGroupAddress", err)
				return
			}
			if got != tt.want {
				t.Errorf("ParseGroupTopic(%q) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestTopics_RoundTrip(t *testing.T) {
	topics := NewTopics("a/b")
	ga := knx.GroupAddress{Main: 15, Middle: 7, Sub: 255}

	got, err := topics.ParseGroupTopic(topics.Command(ga), "command")
	if err != nil {
		t.Fatalf("ParseGroupTopic error = %v", err)
	}
	if got != ga {
		t.Errorf("round trip = %v, want %v", got, ga)
	}
}
