package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

func monitorCmd(configPath *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print telegrams seen on the line",
		Long: `Print every telegram the transceiver passes up, one JSON object per line.

Only telegrams for our listen table are accepted unless --all is given,
which also prints the irrelevant ones. Values are decoded for configured
datapoints.

Examples:
  tpuartd monitor
  tpuartd monitor --all | jq .`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd.Context(), *configPath, all, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Also print telegrams not addressed to us")

	return cmd
}

func runMonitor(ctx context.Context, configPath string, all bool, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	dps, err := gateway.NewDatapoints(cfg.Datapoints)
	if err != nil {
		return fmt.Errorf("loading datapoints: %w", err)
	}

	engine, port, err := openEngine(cfg, dps, log)
	if err != nil {
		return err
	}
	defer func() { _ = port.Close() }()

	enc := json.NewEncoder(out)
	handler := monitorHandler(enc, dps, all, func(err error) {
		log.Warn("writing monitor output failed", "error", err)
	})

	if err := engine.Run(ctx, handler); err != nil {
		return fmt.Errorf("receive loop: %w", err)
	}
	return nil
}

// monitorHandler returns an engine handler that encodes telegram events.
func monitorHandler(enc *json.Encoder, dps gateway.Datapoints, all bool, onErr func(error)) tpuart.Handler {
	return func(ev tpuart.Event) {
		switch ev.Type {
		case tpuart.EventTelegram:
		case tpuart.EventIrrelevantTelegram:
			if !all {
				return
			}
		default:
			return
		}
		if ev.Telegram == nil {
			return
		}

		msg := gateway.NewTelegramMessage(ev.Telegram, ev.ChecksumOK, ev.ReceivedAt, gateway.DirectionRx)
		if ev.Telegram.IsTargetGroup() {
			cmd := ev.Telegram.Command()
			if dp, ok := dps.Lookup(ev.Telegram.TargetGroupAddress()); ok && (cmd == knx.CommandWrite || cmd == knx.CommandAnswer) {
				if v, err := knx.DecodeValue(ev.Telegram, dp.DPT); err == nil {
					msg.Value = v
					msg.DPT = dp.DPT
				}
			}
		}
		if err := enc.Encode(msg); err != nil {
			onErr(err)
		}
	}
}
