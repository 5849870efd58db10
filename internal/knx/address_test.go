package knx

import (
	"errors"
	"testing"
)

func TestParseGroupAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    GroupAddress
		wantErr bool
	}{
		{"1/2/3", GroupAddress{1, 2, 3}, false},
		{"0/0/0", GroupAddress{0, 0, 0}, false},
		{"15/7/255", GroupAddress{15, 7, 255}, false},
		{" 4/1/20 ", GroupAddress{4, 1, 20}, false},
		{"16/0/0", GroupAddress{}, true},
		{"1/8/0", GroupAddress{}, true},
		{"1/2/256", GroupAddress{}, true},
		{"1/2", GroupAddress{}, true},
		{"1/2/3/4", GroupAddress{}, true},
		{"a/b/c", GroupAddress{}, true},
		{"", GroupAddress{}, true},
		{"-1/0/0", GroupAddress{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseGroupAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGroupAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGroupAddress) {
					t.Errorf("error = %v, want ErrInvalidGroupAddress", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseGroupAddress(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestGroupAddressString(t *testing.T) {
	ga := GroupAddress{Main: 1, Middle: 2, Sub: 3}
	if got := ga.String(); got != "1/2/3" {
		t.Errorf("String() = %q, want %q", got, "1/2/3")
	}
}

func TestGroupAddressIsValid(t *testing.T) {
	tests := []struct {
		ga   GroupAddress
		want bool
	}{
		{GroupAddress{15, 7, 255}, true},
		{GroupAddress{16, 0, 0}, false},
		{GroupAddress{0, 8, 0}, false},
	}
	for _, tt := range tests {
		if got := tt.ga.IsValid(); got != tt.want {
			t.Errorf("%v.IsValid() = %v, want %v", tt.ga, got, tt.want)
		}
	}
	if !BroadcastAddress.IsBroadcast() {
		t.Error("BroadcastAddress.IsBroadcast() = false")
	}
	if (GroupAddress{0, 0, 1}).IsBroadcast() {
		t.Error("0/0/1 reported as broadcast")
	}
}

func TestParseIndividualAddress(t *testing.T) {
	tests := []struct {
		input   string
		want    IndividualAddress
		wantErr bool
	}{
		{"1.1.5", IndividualAddress{1, 1, 5}, false},
		{"1/1/5", IndividualAddress{1, 1, 5}, false},
		{"15.15.255", IndividualAddress{15, 15, 255}, false},
		{"0.0.0", IndividualAddress{0, 0, 0}, false},
		{"16.0.0", IndividualAddress{}, true},
		{"1.16.0", IndividualAddress{}, true},
		{"1.1.256", IndividualAddress{}, true},
		{"1.1", IndividualAddress{}, true},
		{"1.1/5", IndividualAddress{}, true},
		{"x.y.z", IndividualAddress{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIndividualAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIndividualAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidIndividualAddress) {
					t.Errorf("error = %v, want ErrInvalidIndividualAddress", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseIndividualAddress(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got.String() != tt.want.String() {
				t.Errorf("String() = %q, want %q", got.String(), tt.want.String())
			}
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParseGroupAddress did not panic on invalid input")
		}
	}()
	_ = MustParseGroupAddress("99/99/99")
}
