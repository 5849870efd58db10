package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// Measurement names.
const (
	MeasurementTelegram  = "knx_telegram"
	MeasurementDatapoint = "knx_datapoint"
	MeasurementEngine    = "tpuart_stats"
)

// WriteTelegram records one accepted telegram.
func (c *Client) WriteTelegram(t *knx.Telegram, checksumOK bool, at time.Time) {
	if !c.IsConnected() || t == nil {
		return
	}
	c.writeAPI.WritePoint(TelegramPoint(t, checksumOK, at))
}

// WriteDatapoint records a decoded group value.
func (c *Client) WriteDatapoint(ga knx.GroupAddress, dpt knx.DPT, name string, value any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(DatapointPoint(ga, dpt, name, value, at))
}

// WriteEngineStats records a snapshot of line engine counters.
func (c *Client) WriteEngineStats(fields map[string]any, at time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementEngine, nil, fields, at))
}

// TelegramPoint builds the point for a telegram. Addresses and the
// command are tags; payload details are fields.
func TelegramPoint(t *knx.Telegram, checksumOK bool, at time.Time) *write.Point {
	tags := map[string]string{
		"source":  t.SourceAddress().String(),
		"target":  t.TargetString(),
		"command": t.Command().String(),
	}
	if t.IsTargetGroup() {
		tags["target_type"] = "group"
	} else {
		tags["target_type"] = "individual"
	}

	fields := map[string]any{
		"payload_length": t.PayloadLength(),
		"first_data":     int(t.FirstDataByte()),
		"routing":        int(t.RoutingCounter()),
		"repeated":       t.Repeated(),
		"checksum_ok":    checksumOK,
	}

	return write.NewPoint(MeasurementTelegram, tags, fields, at)
}

// DatapointPoint builds the point for a decoded value. Numeric and
// boolean values land in the "value" field (booleans as 0/1) so a series
// keeps one field type; everything else goes to "text".
func DatapointPoint(ga knx.GroupAddress, dpt knx.DPT, name string, value any, at time.Time) *write.Point {
	tags := map[string]string{
		"group_address": ga.String(),
		"dpt":           string(dpt),
	}
	if name != "" {
		tags["name"] = name
	}

	fields := map[string]any{}
	switch v := value.(type) {
	case bool:
		if v {
			fields["value"] = 1.0
		} else {
			fields["value"] = 0.0
		}
	case float64:
		fields["value"] = v
	case int:
		fields["value"] = float64(v)
	case string:
		fields["text"] = v
	default:
		fields["text"] = fmt.Sprint(v)
	}

	return write.NewPoint(MeasurementDatapoint, tags, fields, at)
}
