package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// HistoryPoint is one stored datapoint value.
type HistoryPoint struct {
	Time  time.Time `json:"time"`
	Field string    `json:"field"`
	Value any       `json:"value"`
}

// maxHistoryPoints caps a history query.
const maxHistoryPoints = 1000

// DatapointHistory returns the decoded values recorded for ga since the
// given time, oldest first.
func (c *Client) DatapointHistory(ctx context.Context, ga knx.GroupAddress, since time.Time) ([]HistoryPoint, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	result, err := c.client.QueryAPI(c.cfg.Org).Query(ctx, historyQuery(c.cfg.Bucket, ga, since))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close()

	var points []HistoryPoint
	for result.Next() {
		rec := result.Record()
		points = append(points, HistoryPoint{
			Time:  rec.Time(),
			Field: rec.Field(),
			Value: rec.Value(),
		})
	}
	if err := result.Err(); err != nil {
		return points, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return points, nil
}

// historyQuery builds the Flux query for one group address.
func historyQuery(bucket string, ga knx.GroupAddress, since time.Time) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q and r.group_address == %q)
  |> sort(columns: ["_time"])
  |> limit(n: %d)`,
		bucket, since.UTC().Format(time.RFC3339), MeasurementDatapoint, ga.String(), maxHistoryPoints)
}
