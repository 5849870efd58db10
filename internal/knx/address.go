package knx

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupAddress represents a KNX group address in 3-level format.
//
// Format: Main/Middle/Sub
//   - Main:   0-15 (4 bits carried in the TP-UART frame)
//   - Middle: 0-7  (3 bits)
//   - Sub:    0-255 (8 bits)
type GroupAddress struct {
	Main   uint8
	Middle uint8
	Sub    uint8
}

// IndividualAddress represents a KNX individual (physical) address.
//
// Format: Area.Line.Member
//   - Area:   0-15 (4 bits)
//   - Line:   0-15 (4 bits)
//   - Member: 0-255 (8 bits)
type IndividualAddress struct {
	Area   uint8
	Line   uint8
	Member uint8
}

// Address limits for the TP-UART frame layout.
const (
	maxMain   = 15
	maxMiddle = 7
	maxSub    = 255

	maxArea   = 15
	maxLine   = 15
	maxMember = 255

	// addressLevelCount is the number of levels in both address forms.
	addressLevelCount = 3
)

// BroadcastAddress is the group address 0/0/0 used for programming-mode
// discovery.
var BroadcastAddress = GroupAddress{}

// ParseGroupAddress parses a 3-level group address string.
//
// Accepts formats:
//   - "1/2/3": standard 3-level format
//
// Parameters:
//   - s: Group address string
//
// Returns:
//   - GroupAddress: Parsed address
//   - error: ErrInvalidGroupAddress if parsing fails
//
// Example:
//
//	addr, err := ParseGroupAddress("1/2/3")
//	if err != nil {
//	    return err
//	}
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != addressLevelCount {
		return GroupAddress{}, fmt.Errorf("%w: expected 3-level format (main/middle/sub), got %q", ErrInvalidGroupAddress, s)
	}

	levels, err := parseLevels(parts, [addressLevelCount]uint64{maxMain, maxMiddle, maxSub})
	if err != nil {
		return GroupAddress{}, fmt.Errorf("%w: %q: %w", ErrInvalidGroupAddress, s, err)
	}

	return GroupAddress{Main: levels[0], Middle: levels[1], Sub: levels[2]}, nil
}

// MustParseGroupAddress is like ParseGroupAddress but panics on error.
// It is intended for constants in tests and static tables.
func MustParseGroupAddress(s string) GroupAddress {
	ga, err := ParseGroupAddress(s)
	if err != nil {
		panic(err)
	}
	return ga
}

// String returns the group address in 3-level format.
//
// Example: "1/2/3"
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// IsValid returns true if the group address values fit the frame layout.
func (ga GroupAddress) IsValid() bool {
	return ga.Main <= maxMain && ga.Middle <= maxMiddle
}

// IsBroadcast reports whether the address is 0/0/0.
func (ga GroupAddress) IsBroadcast() bool {
	return ga == BroadcastAddress
}

// ParseIndividualAddress parses an individual address string.
//
// Accepts formats:
//   - "1.1.5": standard dotted format
//   - "1/1/5": slash format used by older device configs
//
// Returns ErrInvalidIndividualAddress if parsing fails.
func ParseIndividualAddress(s string) (IndividualAddress, error) {
	trimmed := strings.TrimSpace(s)
	sep := "."
	if !strings.Contains(trimmed, sep) {
		sep = "/"
	}

	parts := strings.Split(trimmed, sep)
	if len(parts) != addressLevelCount {
		return IndividualAddress{}, fmt.Errorf("%w: expected area.line.member, got %q", ErrInvalidIndividualAddress, s)
	}

	levels, err := parseLevels(parts, [addressLevelCount]uint64{maxArea, maxLine, maxMember})
	if err != nil {
		return IndividualAddress{}, fmt.Errorf("%w: %q: %w", ErrInvalidIndividualAddress, s, err)
	}

	return IndividualAddress{Area: levels[0], Line: levels[1], Member: levels[2]}, nil
}

// MustParseIndividualAddress is like ParseIndividualAddress but panics on error.
func MustParseIndividualAddress(s string) IndividualAddress {
	ia, err := ParseIndividualAddress(s)
	if err != nil {
		panic(err)
	}
	return ia
}

// String returns the individual address in dotted format.
//
// Example: "1.1.5"
func (ia IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", ia.Area, ia.Line, ia.Member)
}

// IsValid returns true if the individual address values fit the frame layout.
func (ia IndividualAddress) IsValid() bool {
	return ia.Area <= maxArea && ia.Line <= maxLine
}

// parseLevels parses three decimal address levels against per-level maxima.
func parseLevels(parts []string, limits [addressLevelCount]uint64) ([addressLevelCount]uint8, error) {
	var out [addressLevelCount]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return out, fmt.Errorf("level %d: %w", i+1, err)
		}
		if v > limits[i] {
			return out, fmt.Errorf("level %d must be 0-%d, got %d", i+1, limits[i], v)
		}
		out[i] = uint8(v) //nolint:gosec // bounded by ParseUint bitSize 8
	}
	return out, nil
}
