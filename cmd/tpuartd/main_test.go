package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/gateway"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// quietLine is a Duplex with nothing to read that accepts every write.
type quietLine struct{}

func (quietLine) Available() bool { return false }

func (quietLine) ReceiveByte(time.Duration) (byte, error) { return 0, tpuart.ErrReadTimeout }

func (quietLine) Write([]byte) error { return nil }

func (quietLine) Configure(tpuart.LineSettings) error { return nil }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := runGateway(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("runGateway() should fail with invalid config path")
	}
}

// TestRun_MissingSerialPort verifies run fails when the transceiver cannot
// be opened.
func TestRun_MissingSerialPort(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
gateway:
  individual_address: "1.1.250"
serial:
  port: "/nonexistent/ttyTPUART"
mqtt:
  enabled: false
database:
  enabled: false
api:
  enabled: false
logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := runGateway(ctx, configPath)
	if err == nil {
		t.Fatal("runGateway() should fail without a serial port")
	}
	if !strings.Contains(err.Error(), "opening transceiver") {
		t.Errorf("error = %v, want transceiver open failure", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("TPUART_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("TPUART_CONFIG", "/etc/tpuartd.toml")
	if got := getConfigPath(); got != "/etc/tpuartd.toml" {
		t.Errorf("getConfigPath() = %q, want /etc/tpuartd.toml", got)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version output = %q, want %q", got, version)
	}
}

func TestSendCmd_RequiresAddress(t *testing.T) {
	root := rootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"send"})

	if err := root.Execute(); err == nil {
		t.Error("send without arguments should fail")
	}
}

func TestBuildSendRequest(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		opts      sendOptions
		wantValue any
		wantErr   bool
	}{
		{"bool write", []string{"1/2/3", "true"}, sendOptions{action: "write", dpt: "1.001"}, true, false},
		{"float write", []string{"3/1/0", "21.5"}, sendOptions{action: "write", dpt: "9.001"}, 21.5, false},
		{"bare word", []string{"1/2/3", "on"}, sendOptions{action: "write"}, "on", false},
		{"read without value", []string{"1/2/3"}, sendOptions{action: "read"}, nil, false},
		{"write without value", []string{"1/2/3"}, sendOptions{action: "write"}, nil, true},
		{"bad address", []string{"1/2", "true"}, sendOptions{action: "write"}, nil, true},
		{"bad action", []string{"1/2/3", "true"}, sendOptions{action: "toggle"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildSendRequest(tt.args, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildSendRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if req.Value != tt.wantValue {
				t.Errorf("value = %#v, want %#v", req.Value, tt.wantValue)
			}
			if req.Origin != "cli" {
				t.Errorf("origin = %q, want cli", req.Origin)
			}
			if req.DPT != knx.DPT(tt.opts.dpt) {
				t.Errorf("dpt = %q, want %q", req.DPT, tt.opts.dpt)
			}
		})
	}
}

func TestLineSettings(t *testing.T) {
	got, err := lineSettings(config.SerialConfig{BaudRate: 19200, DataBits: 8, Parity: "even", StopBits: 1})
	if err != nil {
		t.Fatalf("lineSettings() error: %v", err)
	}
	if got != tpuart.DefaultLineSettings {
		t.Errorf("lineSettings() = %v, want %v", got, tpuart.DefaultLineSettings)
	}

	if _, err := lineSettings(config.SerialConfig{Parity: "sideways"}); err == nil {
		t.Error("lineSettings() with bad parity should fail")
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.IndividualAddress = "1.1.42"
	cfg.Gateway.AutoRespond = false
	cfg.Gateway.ListenBroadcast = true
	cfg.Gateway.SettleDelayMS = 0

	got, err := engineConfig(cfg, tpuart.DefaultLineSettings)
	if err != nil {
		t.Fatalf("engineConfig() error: %v", err)
	}
	if got.Address != (knx.IndividualAddress{Area: 1, Line: 1, Member: 42}) {
		t.Errorf("address = %v, want 1.1.42", got.Address)
	}
	if !got.DisableAutoResponses {
		t.Error("DisableAutoResponses = false, want true")
	}
	if !got.ListenBroadcast {
		t.Error("ListenBroadcast = false, want true")
	}
	if got.SerialTimeout != time.Second {
		t.Errorf("SerialTimeout = %v, want 1s", got.SerialTimeout)
	}
	if got.SettleDelay >= 0 {
		t.Errorf("SettleDelay = %v, want negative (no delay)", got.SettleDelay)
	}

	cfg.Gateway.IndividualAddress = "nope"
	if _, err := engineConfig(cfg, tpuart.DefaultLineSettings); err == nil {
		t.Error("engineConfig() with bad address should fail")
	}
}

func TestPopulateListenTable(t *testing.T) {
	engine, err := tpuart.New(quietLine{}, tpuart.Config{Address: knx.IndividualAddress{Area: 1, Line: 1, Member: 250}})
	if err != nil {
		t.Fatalf("tpuart.New() error: %v", err)
	}

	cfg := config.Default()
	for i := range 14 {
		cfg.Gateway.ListenGroups = append(cfg.Gateway.ListenGroups, fmt.Sprintf("1/0/%d", i))
	}
	dps, err := gateway.NewDatapoints([]config.DatapointConfig{
		{GroupAddress: "1/0/0", DPT: "1.001"},
		{GroupAddress: "3/1/0", DPT: "9.001"},
		{GroupAddress: "3/1/1", DPT: "9.001"},
	})
	if err != nil {
		t.Fatalf("NewDatapoints() error: %v", err)
	}

	if err := populateListenTable(engine, cfg, dps, testLogger()); err != nil {
		t.Fatalf("populateListenTable() error: %v", err)
	}

	if n := len(engine.ListenGroupAddresses()); n != tpuart.MaxListenGroupAddresses {
		t.Errorf("listen table size = %d, want %d", n, tpuart.MaxListenGroupAddresses)
	}
	if !engine.IsListeningToGroupAddress(knx.MustParseGroupAddress("3/1/0")) {
		t.Error("first new datapoint address not in listen table")
	}

	cfg.Gateway.ListenGroups = []string{"bad"}
	if err := populateListenTable(engine, cfg, nil, testLogger()); err == nil {
		t.Error("populateListenTable() with a bad group should fail")
	}
}

func TestMonitorHandler(t *testing.T) {
	dps, err := gateway.NewDatapoints([]config.DatapointConfig{{GroupAddress: "1/2/3", DPT: "1.001"}})
	if err != nil {
		t.Fatalf("NewDatapoints() error: %v", err)
	}

	tel := knx.NewTelegram()
	tel.SetSourceAddress(knx.IndividualAddress{Area: 1, Line: 1, Member: 5})
	tel.SetTargetGroupAddress(knx.MustParseGroupAddress("1/2/3"))
	tel.SetCommand(knx.CommandWrite)
	tel.SetBool(true)
	tel.CreateChecksum()

	events := []tpuart.Event{
		{Type: tpuart.EventTelegram, Telegram: tel, ChecksumOK: true, ReceivedAt: time.Now()},
		{Type: tpuart.EventIrrelevantTelegram, Telegram: tel, ChecksumOK: true, ReceivedAt: time.Now()},
		{Type: tpuart.EventResetIndication},
		{Type: tpuart.EventUnknown, Byte: 0x42},
	}

	tests := []struct {
		name  string
		all   bool
		lines int
	}{
		{"addressed only", false, 1},
		{"all telegrams", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := monitorHandler(json.NewEncoder(&out), dps, tt.all, func(err error) { t.Errorf("encode: %v", err) })
			for _, ev := range events {
				h(ev)
			}

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			if len(lines) != tt.lines {
				t.Fatalf("printed %d lines, want %d: %q", len(lines), tt.lines, out.String())
			}
			var msg gateway.TelegramMessage
			if err := json.Unmarshal([]byte(lines[0]), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if msg.Target != "1/2/3" || msg.Value != true {
				t.Errorf("message = %+v", msg)
			}
		})
	}
}
