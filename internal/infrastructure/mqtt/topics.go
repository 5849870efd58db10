package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "knx/tpuart"

// Topics builds the gateway's MQTT topic tree under a common prefix.
//
// Group addresses are spelled as three path segments so subscribers can use
// single-level wildcards per address level:
//
//	knx/tpuart/telegram/1/2/3   raw telegrams addressed to 1/2/3
//	knx/tpuart/state/1/2/3      decoded datapoint values (retained)
//	knx/tpuart/command/1/2/3    write, read and answer requests for the bus
//	knx/tpuart/ack/1/2/3        outcome of each command
//	knx/tpuart/status           gateway online/offline (retained, LWT)
//	knx/tpuart/health           periodic engine statistics
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, trimming surrounding slashes.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

func groupPath(ga knx.GroupAddress) string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// Telegram returns the topic raw telegrams for ga are published on.
func (t Topics) Telegram(ga knx.GroupAddress) string {
	return t.prefix() + "/telegram/" + groupPath(ga)
}

// Individual returns the topic for telegrams addressed to a device.
func (t Topics) Individual(ia knx.IndividualAddress) string {
	return fmt.Sprintf("%s/individual/%d/%d/%d", t.prefix(), ia.Area, ia.Line, ia.Member)
}

// State returns the retained decoded-value topic for ga.
func (t Topics) State(ga knx.GroupAddress) string {
	return t.prefix() + "/state/" + groupPath(ga)
}

// Command returns the topic on which writes to ga are accepted.
func (t Topics) Command(ga knx.GroupAddress) string {
	return t.prefix() + "/command/" + groupPath(ga)
}

// Ack returns the topic command outcomes for ga are published on.
func (t Topics) Ack(ga knx.GroupAddress) string {
	return t.prefix() + "/ack/" + groupPath(ga)
}

// Status returns the retained online/offline topic.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// Health returns the statistics topic.
func (t Topics) Health() string {
	return t.prefix() + "/health"
}

// AllCommands returns the wildcard subscription for every command topic.
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/#"
}

// ParseGroupTopic extracts the group address from a telegram, state,
// or command topic. kind is the segment after the prefix ("command" etc).
//
// Returns an error if topic is not under this prefix and kind, or the
// trailing segments are not a valid group address.
func (t Topics) ParseGroupTopic(topic, kind string) (knx.GroupAddress, error) {
	head := t.prefix() + "/" + kind + "/"
	rest, ok := strings.CutPrefix(topic, head)
	if !ok {
		return knx.GroupAddress{}, fmt.Errorf("%w: %q is not a %s topic", ErrInvalidTopic, topic, kind)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 { //nolint:mnd // three address levels
		return knx.GroupAddress{}, fmt.Errorf("%w: %q needs main/middle/sub", ErrInvalidTopic, topic)
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 8); err != nil {
			return knx.GroupAddress{}, fmt.Errorf("%w: %q: %v", ErrInvalidTopic, topic, err)
		}
	}
	return knx.ParseGroupAddress(strings.Join(parts, "/"))
}
