package firmware

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Type selects which update procedure runs on the node.
type Type string

const (
	TypeBMC Type = "bmc"
	TypeSPI Type = "spi"
)

// Mode is a user-facing firmware mode identifier. Callers historically
// supply either a name ("bios") or a number (3), so it decodes from both
// JSON shapes.
type Mode string

func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = Mode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("imageMode must be a string or a number, got %s", b)
	}
	*m = Mode(n.String())
	return nil
}

// The mode tables are fixed for the process lifetime. Wire codes are what
// the agent expects on its firmware endpoints and differ from the names
// operators use.
var spiModes = map[string]string{
	"fullbios": "0",
	"bios":     "1",
	"uefi":     "2",
	"serdes":   "3",
	"post":     "4",
	"me":       "5",
}

var bmcModes = map[string]string{
	"ssp":             "0x142",
	"bmcapp":          "0x140",
	"bootblock":       "0x144",
	"adaptivecooling": "0x145",
	"fullbmc":         "0x5f",
}

var validSPICodes = map[string]bool{
	"0": true, "1": true, "2": true, "3": true, "4": true, "5": true,
}

var validBMCCodes = map[string]bool{
	"0x142": true, "0x140": true, "0x144": true, "0x145": true, "0x5f": true,
}

// TranslateSPIMode maps a user-facing SPI mode to its wire code. Numeric
// input passes through in decimal string form. No validation happens
// here: an unmapped name yields an empty string, and callers must check
// the result with ValidSPICode before use.
func TranslateSPIMode(mode Mode) string {
	if n, err := strconv.Atoi(string(mode)); err == nil {
		return strconv.Itoa(n)
	}
	return spiModes[string(mode)]
}

// TranslateBMCMode maps a user-facing BMC mode to its wire code. Input
// already carrying the 0x prefix passes through unchanged, valid or not;
// callers must check the result with ValidBMCCode.
func TranslateBMCMode(mode Mode) string {
	if strings.HasPrefix(string(mode), "0x") {
		return string(mode)
	}
	return bmcModes[string(mode)]
}

// ValidSPICode reports whether code is one the agent accepts for SPI
// updates.
func ValidSPICode(code string) bool { return validSPICodes[code] }

// ValidBMCCode reports whether code is one the agent accepts for BMC
// updates.
func ValidBMCCode(code string) bool { return validBMCCodes[code] }
