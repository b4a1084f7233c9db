package models

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseIdentity(t *testing.T) {
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"checksummed", checksummed, false},
		{"lowercase", strings.ToLower(checksummed), false},
		{"uppercase body", "0x" + strings.ToUpper(checksummed[2:]), false},
		{"surrounding space", "  " + checksummed + " ", false},
		{"bad checksum", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", true},
		{"too short", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeA", true},
		{"not hex", "0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIdentity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got.Hex() != checksummed {
				t.Errorf("ParseIdentity(%q) = %s, want %s", tt.in, got.Hex(), checksummed)
			}
		})
	}
}

func TestContainsIdentityIgnoresCase(t *testing.T) {
	a := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	lower, err := ParseIdentity(strings.ToLower(a.Hex()))
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}

	if !ContainsIdentity([]common.Address{common.HexToAddress("0x01"), a}, lower) {
		t.Error("expected lowercase identity to match checksummed member")
	}
	if ContainsIdentity(nil, a) {
		t.Error("empty list must not contain anything")
	}
}

func TestShortIdentity(t *testing.T) {
	a := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	if got := ShortIdentity(a); got != "0x5aAe...eAed" {
		t.Errorf("ShortIdentity = %s", got)
	}
}

func TestParseFilter(t *testing.T) {
	tests := map[string]Filter{
		"":         FilterAll,
		"all":      FilterAll,
		"executed": FilterExecuted,
		"pending":  FilterPending,
		"mine":     FilterMine,
		"my":       FilterMine,
	}
	for in, want := range tests {
		got, err := ParseFilter(in)
		if err != nil || got != want {
			t.Errorf("ParseFilter(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFilter("everything"); err == nil {
		t.Error("expected error for unknown filter")
	}
}
