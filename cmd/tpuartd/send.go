package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// sendOptions holds the flags of the send command.
type sendOptions struct {
	action  string
	dpt     string
	timeout time.Duration
}

func sendCmd(configPath *string) *cobra.Command {
	opts := sendOptions{}

	cmd := &cobra.Command{
		Use:   "send <group-address> [value]",
		Short: "Send one group telegram and exit",
		Long: `Send a group write, read or answer and wait for the transceiver's
confirmation.

The value is parsed as JSON when possible (true, 21.5, {"increase":true,"steps":3})
and used as a plain word otherwise. The datapoint type defaults to the one
configured for the group address.

Examples:
  tpuartd send 1/2/3 true --dpt 1.001
  tpuartd send 3/1/0 21.5 --dpt 9.001
  tpuartd send 1/2/3 --action read`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildSendRequest(args, opts)
			if err != nil {
				return err
			}
			return runSend(cmd.Context(), *configPath, req, opts.timeout, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.action, "action", "a", "write", "write, read or answer")
	cmd.Flags().StringVarP(&opts.dpt, "dpt", "d", "", "Datapoint type, e.g. 1.001 or 9.001")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 5*time.Second, "Overall time limit")

	return cmd
}

// buildSendRequest validates the command line into a gateway request.
func buildSendRequest(args []string, opts sendOptions) (gateway.Request, error) {
	ga, err := knx.ParseGroupAddress(args[0])
	if err != nil {
		return gateway.Request{}, err
	}
	action, err := gateway.ParseAction(opts.action)
	if err != nil {
		return gateway.Request{}, err
	}

	req := gateway.Request{
		GroupAddress: ga,
		Action:       action,
		DPT:          knx.DPT(opts.dpt),
		Origin:       "cli",
	}

	if action == gateway.ActionRead {
		return req, nil
	}
	if len(args) < 2 {
		return gateway.Request{}, fmt.Errorf("%s needs a value", action)
	}
	msg, err := gateway.ParseCommandMessage([]byte(args[1]))
	if err != nil {
		return gateway.Request{}, err
	}
	req.Value = msg.Value
	return req, nil
}

func runSend(ctx context.Context, configPath string, req gateway.Request, timeout time.Duration, out io.Writer) error {
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

	bridge, err := gateway.NewBridge(gateway.BridgeOptions{
		Engine:     engine,
		Datapoints: dps,
		Version:    version,
		Logger:     log.Component("gateway"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer bridge.Stop()

	result, err := bridge.Send(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
