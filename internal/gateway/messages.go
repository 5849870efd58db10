package gateway

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// Action is what a request asks the gateway to put on the line.
type Action string

// Request actions.
const (
	ActionWrite  Action = "write"
	ActionRead   Action = "read"
	ActionAnswer Action = "answer"
)

// ParseAction parses a case-insensitive action name. An empty name means
// write.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionWrite:
		return ActionWrite, nil
	case ActionRead:
		return ActionRead, nil
	case ActionAnswer:
		return ActionAnswer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// Command returns the application-layer command for the action.
func (a Action) Command() knx.Command {
	switch a {
	case ActionRead:
		return knx.CommandRead
	case ActionAnswer:
		return knx.CommandAnswer
	default:
		return knx.CommandWrite
	}
}

// Request asks the gateway to send one group telegram.
type Request struct {
	// ID correlates the request with its acknowledgement. Generated when
	// empty.
	ID string

	GroupAddress knx.GroupAddress
	Action       Action

	// DPT selects the payload encoding. Falls back to the configured
	// datapoint for GroupAddress. Unused for reads.
	DPT knx.DPT

	Value any

	// Origin labels the request in metrics and logs ("mqtt", "api", "cli").
	Origin string
}

// Result describes a request that reached the line.
type Result struct {
	ID           string           `json:"id"`
	GroupAddress knx.GroupAddress `json:"-"`
	Address      string           `json:"address"`
	Action       Action           `json:"action"`
	DPT          knx.DPT          `json:"dpt,omitempty"`
	Raw          string           `json:"raw"`
	SentAt       time.Time        `json:"sent_at"`
}

// CommandMessage is the payload accepted on the command topics.
// Topic: {prefix}/command/{main}/{middle}/{sub}
//
// A payload that is not a JSON object is taken as a bare value to write,
// so `mosquitto_pub -t knx/tpuart/command/1/2/3 -m 21.5` works.
type CommandMessage struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Action    string    `json:"action,omitempty"`
	DPT       knx.DPT   `json:"dpt,omitempty"`
	Value     any       `json:"value,omitempty"`
}

// ParseCommandMessage decodes a command payload.
func ParseCommandMessage(payload []byte) (CommandMessage, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return CommandMessage{}, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}

	if !strings.HasPrefix(trimmed, "{") {
		var value any
		if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
			value = trimmed // bare word such as on/off
		}
		return CommandMessage{Value: value}, nil
	}

	var msg CommandMessage
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return msg, nil
}

// AckStatus represents the outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates the transceiver confirmed the telegram.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the telegram was not sent or not confirmed.
	AckFailed AckStatus = "failed"
)

// Error codes for failed commands.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNegativeAck       = "NEGATIVE_ACK"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeLineError         = "LINE_ERROR"
)

// AckMessage reports a command's outcome.
// Topic: {prefix}/ack/{main}/{middle}/{sub}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address"`
	Action    Action    `json:"action,omitempty"`
	Status    AckStatus `json:"status"`
	Raw       string    `json:"raw,omitempty"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TelegramMessage is the JSON form of a telegram seen on or sent to the line.
// Topic: {prefix}/telegram/{main}/{middle}/{sub} or
// {prefix}/individual/{area}/{line}/{member}
type TelegramMessage struct {
	Timestamp      time.Time `json:"timestamp"`
	Direction      string    `json:"direction"`
	Source         string    `json:"source"`
	Target         string    `json:"target"`
	TargetType     string    `json:"target_type"`
	Priority       string    `json:"priority"`
	Repeated       bool      `json:"repeated"`
	RoutingCounter uint8     `json:"routing_counter"`
	Communication  string    `json:"communication"`
	Command        string    `json:"command"`
	FirstData      uint8     `json:"first_data"`
	PayloadLength  int       `json:"payload_length"`
	Raw            string    `json:"raw"`
	ChecksumOK     bool      `json:"checksum_ok"`

	// Value is set when the target is a configured datapoint.
	Value any     `json:"value,omitempty"`
	DPT   knx.DPT `json:"dpt,omitempty"`
}

// Telegram directions.
const (
	DirectionRx = "rx"
	DirectionTx = "tx"
)

// NewTelegramMessage describes t.
func NewTelegramMessage(t *knx.Telegram, checksumOK bool, at time.Time, direction string) TelegramMessage {
	targetType := "individual"
	if t.IsTargetGroup() {
		targetType = "group"
	}
	return TelegramMessage{
		Timestamp:      at.UTC(),
		Direction:      direction,
		Source:         t.SourceAddress().String(),
		Target:         t.TargetString(),
		TargetType:     targetType,
		Priority:       t.Priority().String(),
		Repeated:       t.Repeated(),
		RoutingCounter: t.RoutingCounter(),
		Communication:  t.CommunicationType().String(),
		Command:        t.Command().String(),
		FirstData:      t.FirstDataByte(),
		PayloadLength:  t.PayloadLength(),
		Raw:            hex.EncodeToString(t.Bytes()),
		ChecksumOK:     checksumOK,
	}
}

// StateMessage carries the decoded value of a configured datapoint.
// Topic: {prefix}/state/{main}/{middle}/{sub}
// QoS: configured, Retained: Yes
type StateMessage struct {
	Address   string    `json:"address"`
	Name      string    `json:"name,omitempty"`
	DPT       knx.DPT   `json:"dpt"`
	Value     any       `json:"value"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of the gateway.
type HealthStatus string

const (
	HealthOnline   HealthStatus = "online"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports gateway status and engine counters.
// Topic: {prefix}/health
type HealthMessage struct {
	Status          HealthStatus      `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Version         string            `json:"version"`
	UptimeSeconds   int64             `json:"uptime_seconds"`
	Address         string            `json:"address"`
	ListenGroups    int               `json:"listen_groups"`
	ListenBroadcast bool              `json:"listen_broadcast"`
	Statistics      *EngineStatistics `json:"statistics,omitempty"`
}

// EngineStatistics is the JSON form of the engine counters.
type EngineStatistics struct {
	TelegramsReceived   uint64     `json:"telegrams_received"`
	TelegramsIrrelevant uint64     `json:"telegrams_irrelevant"`
	TelegramsSent       uint64     `json:"telegrams_sent"`
	NegativeAcks        uint64     `json:"negative_acks"`
	Timeouts            uint64     `json:"timeouts"`
	UnknownBytes        uint64     `json:"unknown_bytes"`
	ResetIndications    uint64     `json:"reset_indications"`
	ConfirmsSent        uint64     `json:"confirms_sent"`
	ChecksumErrors      uint64     `json:"checksum_errors"`
	LastActivity        *time.Time `json:"last_activity,omitempty"`
}

// NewEngineStatistics converts engine counters.
func NewEngineStatistics(s tpuart.Stats) *EngineStatistics {
	out := &EngineStatistics{
		TelegramsReceived:   s.TelegramsRx,
		TelegramsIrrelevant: s.TelegramsIrrelevant,
		TelegramsSent:       s.TelegramsTx,
		NegativeAcks:        s.NegativeAcks,
		Timeouts:            s.Timeouts,
		UnknownBytes:        s.UnknownBytes,
		ResetIndications:    s.ResetIndications,
		ConfirmsSent:        s.ConfirmsSent,
		ChecksumErrors:      s.ChecksumErrors,
	}
	if !s.LastActivity.IsZero() {
		last := s.LastActivity.UTC()
		out.LastActivity = &last
	}
	return out
}

// Fields returns the counters as InfluxDB fields.
func (s *EngineStatistics) Fields() map[string]any {
	return map[string]any{
		"telegrams_received":   s.TelegramsReceived,
		"telegrams_irrelevant": s.TelegramsIrrelevant,
		"telegrams_sent":       s.TelegramsSent,
		"negative_acks":        s.NegativeAcks,
		"timeouts":             s.Timeouts,
		"unknown_bytes":        s.UnknownBytes,
		"reset_indications":    s.ResetIndications,
		"confirms_sent":        s.ConfirmsSent,
		"checksum_errors":      s.ChecksumErrors,
	}
}

func newRequestID() string {
	return uuid.NewString()
}
