package dlt

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Profile selects between the two wire layouts dlttap understands.
//
// ProfileDefault reads the standard header's length, session id and
// timestamp little-endian and lays out variable info as name length, name,
// unit length, unit. ProfileAutosar follows the AUTOSAR PRS: big-endian
// standard header fields and both lengths before both strings.
type Profile int

const (
	ProfileDefault Profile = iota
	ProfileAutosar
)

func (p Profile) String() string {
	switch p {
	case ProfileDefault:
		return "default"
	case ProfileAutosar:
		return "autosar"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// ParseProfile parses a profile name as used in config files and flags
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return ProfileDefault, nil
	case "autosar", "prs":
		return ProfileAutosar, nil
	default:
		return ProfileDefault, fmt.Errorf("unknown decoder profile %q (expected default or autosar)", s)
	}
}

// headerOrder is the byte order of standard header fields for the profile
func (p Profile) headerOrder() binary.ByteOrder {
	if p == ProfileAutosar {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DefaultMaxDepth bounds struct nesting inside one argument.
const DefaultMaxDepth = 8

// Decoder decodes DLT frames. It holds no per-stream state and is safe for
// concurrent use.
type Decoder struct {
	Profile  Profile
	MaxDepth int
}

// NewDecoder creates a decoder for the given wire profile
func NewDecoder(p Profile) *Decoder {
	return &Decoder{Profile: p, MaxDepth: DefaultMaxDepth}
}

func (d *Decoder) maxDepth() int {
	if d.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return d.MaxDepth
}

// PayloadOrder returns the byte order of payload fields given the MSBF flag
func PayloadOrder(msbf bool) binary.ByteOrder {
	if msbf {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
