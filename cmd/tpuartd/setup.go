package main

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// loadConfig reads the configuration and builds the logger from it.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", path)
	return cfg, log, nil
}

// lineSettings converts the serial section to transceiver framing.
func lineSettings(cfg config.SerialConfig) (tpuart.LineSettings, error) {
	parity, err := tpuart.ParseParity(cfg.Parity)
	if err != nil {
		return tpuart.LineSettings{}, err
	}
	return tpuart.LineSettings{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: cfg.StopBits,
	}, nil
}

// engineConfig builds the line engine configuration from the gateway
// section.
func engineConfig(cfg *config.Config, line tpuart.LineSettings) (tpuart.Config, error) {
	addr, err := knx.ParseIndividualAddress(cfg.Gateway.IndividualAddress)
	if err != nil {
		return tpuart.Config{}, fmt.Errorf("gateway individual address: %w", err)
	}
	return tpuart.Config{
		Address:              addr,
		Line:                 line,
		SerialTimeout:        cfg.GetSerialTimeout(),
		SettleDelay:          cfg.GetSettleDelay(),
		PollInterval:         cfg.GetPollInterval(),
		ListenBroadcast:      cfg.Gateway.ListenBroadcast,
		DisableAutoResponses: !cfg.Gateway.AutoRespond,
	}, nil
}

// populateListenTable adds the configured listen groups, then every
// datapoint address, to the engine. Addresses that do not fit are
// skipped with a warning.
func populateListenTable(engine *tpuart.Engine, cfg *config.Config, dps gateway.Datapoints, log *logging.Logger) error {
	add := func(ga knx.GroupAddress) {
		if engine.IsListeningToGroupAddress(ga) {
			return
		}
		if err := engine.AddListenGroupAddress(ga); err != nil {
			if errors.Is(err, tpuart.ErrListenTableFull) {
				log.Warn("listen table full, group address not acknowledged", "group_address", ga.String())
				return
			}
			log.Error("adding listen group address failed", "group_address", ga.String(), "error", err)
		}
	}

	for _, s := range cfg.Gateway.ListenGroups {
		ga, err := knx.ParseGroupAddress(s)
		if err != nil {
			return fmt.Errorf("listen group %q: %w", s, err)
		}
		add(ga)
	}
	for _, dp := range dps.Sorted() {
		add(dp.Address)
	}
	return nil
}

// openEngine opens the serial port and prepares the line engine with its
// listen table. The caller closes the returned port.
func openEngine(cfg *config.Config, dps gateway.Datapoints, log *logging.Logger) (*tpuart.Engine, *tpuart.SerialPort, error) {
	line, err := lineSettings(cfg.Serial)
	if err != nil {
		return nil, nil, fmt.Errorf("serial settings: %w", err)
	}
	engCfg, err := engineConfig(cfg, line)
	if err != nil {
		return nil, nil, err
	}

	port, err := tpuart.OpenSerial(cfg.Serial.Port, line, log.Component("serial"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening transceiver: %w", err)
	}

	engine, err := tpuart.New(port, engCfg)
	if err != nil {
		_ = port.Close()
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	engine.SetLogger(log.Component("tpuart"))

	if err := populateListenTable(engine, cfg, dps, log); err != nil {
		_ = port.Close()
		return nil, nil, err
	}

	if cfg.Gateway.ResetOnStart {
		if err := engine.Reset(); err != nil {
			_ = port.Close()
			return nil, nil, fmt.Errorf("resetting transceiver: %w", err)
		}
		log.Info("transceiver reset requested")
	}

	log.Info("line engine ready",
		"port", cfg.Serial.Port,
		"address", engCfg.Address.String(),
		"listen_groups", len(engine.ListenGroupAddresses()),
		"broadcast", engine.ListeningToBroadcasts())

	return engine, port, nil
}
