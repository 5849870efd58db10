package gateway

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

func TestNewDatapoints(t *testing.T) {
	tests := []struct {
		name    string
		entries []config.DatapointConfig
		wantErr error
		wantLen int
	}{
		{"empty", nil, nil, 0},
		{
			name: "valid",
			entries: []config.DatapointConfig{
				{GroupAddress: "1/2/3", DPT: "1.001", Name: "Light"},
				{GroupAddress: "3/1/0", DPT: "9.001"},
			},
			wantLen: 2,
		},
		{
			name:    "bad address",
			entries: []config.DatapointConfig{{GroupAddress: "1/2", DPT: "1.001"}},
			wantErr: knx.ErrInvalidGroupAddress,
		},
		{
			name:    "bad dpt",
			entries: []config.DatapointConfig{{GroupAddress: "1/2/3", DPT: "42.001"}},
			wantErr: knx.ErrUnknownDPT,
		},
		{
			name: "duplicate",
			entries: []config.DatapointConfig{
				{GroupAddress: "1/2/3", DPT: "1.001"},
				{GroupAddress: "1/2/3", DPT: "5.001"},
			},
			wantErr: ErrDuplicateDatapoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dps, err := NewDatapoints(tt.entries)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewDatapoints() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDatapoints() error = %v", err)
			}
			if len(dps) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(dps), tt.wantLen)
			}
		})
	}
}

func TestDatapoints_Sorted(t *testing.T) {
	dps, err := NewDatapoints([]config.DatapointConfig{
		{GroupAddress: "3/1/0", DPT: "9.001"},
		{GroupAddress: "1/2/4", DPT: "1.001"},
		{GroupAddress: "1/2/3", DPT: "1.001"},
		{GroupAddress: "1/0/200", DPT: "5.001"},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"1/0/200", "1/2/3", "1/2/4", "3/1/0"}
	got := dps.Sorted()
	for i, w := range want {
		if got[i].Address.String() != w {
			t.Errorf("Sorted()[%d] = %s, want %s", i, got[i].Address, w)
		}
	}

	dp, ok := dps.Lookup(knx.MustParseGroupAddress("1/2/3"))
	if !ok || dp.DPT != knx.DPTSwitch {
		t.Errorf("Lookup(1/2/3) = %+v, %v", dp, ok)
	}
}
