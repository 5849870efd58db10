package gateway

import (
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// Datapoint names the value type carried by a group address.
type Datapoint struct {
	Address knx.GroupAddress `json:"-"`
	DPT     knx.DPT          `json:"dpt"`
	Name    string           `json:"name,omitempty"`
}

// Datapoints maps group addresses to their configured datapoint.
// It is built once at startup and read-only afterwards.
type Datapoints map[knx.GroupAddress]Datapoint

// NewDatapoints builds the datapoint map from configuration.
func NewDatapoints(entries []config.DatapointConfig) (Datapoints, error) {
	dps := make(Datapoints, len(entries))
	for i, e := range entries {
		ga, err := knx.ParseGroupAddress(e.GroupAddress)
		if err != nil {
			return nil, fmt.Errorf("datapoints[%d]: %w", i, err)
		}
		dpt := knx.DPT(e.DPT)
		if !dpt.IsValid() {
			return nil, fmt.Errorf("datapoints[%d]: %w: %q", i, knx.ErrUnknownDPT, e.DPT)
		}
		if _, dup := dps[ga]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDatapoint, ga)
		}
		dps[ga] = Datapoint{Address: ga, DPT: dpt, Name: e.Name}
	}
	return dps, nil
}

// Lookup returns the datapoint for ga.
func (d Datapoints) Lookup(ga knx.GroupAddress) (Datapoint, bool) {
	dp, ok := d[ga]
	return dp, ok
}

// Sorted returns the datapoints ordered by group address.
func (d Datapoints) Sorted() []Datapoint {
	out := make([]Datapoint, 0, len(d))
	for _, dp := range d {
		out = append(out, dp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Address, out[j].Address
		if a.Main != b.Main {
			return a.Main < b.Main
		}
		if a.Middle != b.Middle {
			return a.Middle < b.Middle
		}
		return a.Sub < b.Sub
	})
	return out
}
