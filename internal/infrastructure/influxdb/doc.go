// Package influxdb records KNX bus traffic in InfluxDB.
//
// Three measurements are written:
//   - knx_telegram: every telegram the engine accepted, tagged by source,
//     target and command
//   - knx_datapoint: decoded values for configured datapoints
//   - tpuart_stats: periodic snapshots of the line engine counters
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Async write failures are delivered to the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteTelegram(ev.Telegram, ev.ChecksumOK, ev.ReceivedAt)
package influxdb
