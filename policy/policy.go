// Copyright 2026 The Privarion Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "fmt"

// Wildcard is the identifier of the implicit default policy. Exactly
// one policy with this identifier always exists in a Store.
const Wildcard = "*"

// ProtectionLevel is an ordered severity tier summarizing how
// aggressively a policy constrains an application. Higher values
// constrain more.
type ProtectionLevel int

const (
	// LevelNone applies no protection.
	LevelNone ProtectionLevel = iota

	// LevelBasic is the default tier: audit logging and the built-in
	// blockers, no per-target filtering.
	LevelBasic

	// LevelStandard adds network and DNS filtering.
	LevelStandard

	// LevelStrict adds hardware identifier spoofing.
	LevelStrict

	// LevelParanoid constrains everything the pipeline can constrain.
	LevelParanoid
)

// String returns the wire name of the level.
func (l ProtectionLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelBasic:
		return "basic"
	case LevelStandard:
		return "standard"
	case LevelStrict:
		return "strict"
	case LevelParanoid:
		return "paranoid"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// ParseProtectionLevel parses a level from its wire name.
func ParseProtectionLevel(name string) (ProtectionLevel, error) {
	switch name {
	case "none":
		return LevelNone, nil
	case "basic":
		return LevelBasic, nil
	case "standard":
		return LevelStandard, nil
	case "strict":
		return LevelStrict, nil
	case "paranoid":
		return LevelParanoid, nil
	default:
		return 0, fmt.Errorf("unknown protection level: %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler so levels serialize as
// their wire names in JSON policy documents.
func (l ProtectionLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ProtectionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseProtectionLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// FilterAction is the network filtering disposition of a policy.
type FilterAction int

const (
	// FilterAllow permits connections silently.
	FilterAllow FilterAction = iota

	// FilterMonitor permits connections but records each one.
	FilterMonitor

	// FilterBlock denies connections.
	FilterBlock
)

// String returns the wire name of the action.
func (a FilterAction) String() string {
	switch a {
	case FilterMonitor:
		return "monitor"
	case FilterBlock:
		return "block"
	default:
		return "allow"
	}
}

// ParseFilterAction parses a network filter action from its wire name.
func ParseFilterAction(name string) (FilterAction, error) {
	switch name {
	case "allow":
		return FilterAllow, nil
	case "monitor":
		return FilterMonitor, nil
	case "block":
		return FilterBlock, nil
	default:
		return 0, fmt.Errorf("unknown network filter action: %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a FilterAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *FilterAction) UnmarshalText(text []byte) error {
	parsed, err := ParseFilterAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// DNSAction is the DNS filtering disposition of a policy.
type DNSAction int

const (
	// DNSAllow permits queries, subject to the blocklists.
	DNSAllow DNSAction = iota

	// DNSBlock denies all queries.
	DNSBlock
)

// String returns "allow" or "block".
func (a DNSAction) String() string {
	if a == DNSBlock {
		return "block"
	}
	return "allow"
}

// ParseDNSAction parses a DNS action from its wire name.
func ParseDNSAction(name string) (DNSAction, error) {
	switch name {
	case "allow":
		return DNSAllow, nil
	case "block":
		return DNSBlock, nil
	default:
		return 0, fmt.Errorf("unknown dns filter action: %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a DNSAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *DNSAction) UnmarshalText(text []byte) error {
	parsed, err := ParseDNSAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// SpoofLevel is the hardware identifier spoofing tier of a policy.
// Enforcement lives outside the mediation pipeline; the field is
// carried here because policies are the single source of per-target
// configuration.
type SpoofLevel int

const (
	// SpoofNone leaves hardware identifiers untouched.
	SpoofNone SpoofLevel = iota

	// SpoofBasic spoofs the identifiers commonly used for tracking.
	SpoofBasic

	// SpoofFull spoofs every identifier the spoofing layer supports.
	SpoofFull
)

// String returns the wire name of the spoof level.
func (l SpoofLevel) String() string {
	switch l {
	case SpoofBasic:
		return "basic"
	case SpoofFull:
		return "full"
	default:
		return "none"
	}
}

// ParseSpoofLevel parses a spoof level from its wire name.
func ParseSpoofLevel(name string) (SpoofLevel, error) {
	switch name {
	case "none":
		return SpoofNone, nil
	case "basic":
		return SpoofBasic, nil
	case "full":
		return SpoofFull, nil
	default:
		return 0, fmt.Errorf("unknown hardware spoofing level: %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l SpoofLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *SpoofLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseSpoofLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// NetworkFiltering configures per-target network mediation. The domain
// lists are sets; order carries no meaning. BlockedDomains takes
// precedence over AllowedDomains when both match.
type NetworkFiltering struct {
	Action         FilterAction `json:"action"`
	AllowedDomains []string     `json:"allowed_domains,omitempty"`
	BlockedDomains []string     `json:"blocked_domains,omitempty"`
}

// DNSFiltering configures per-target DNS mediation.
type DNSFiltering struct {
	Action              DNSAction `json:"action"`
	BlockTracking       bool      `json:"block_tracking,omitempty"`
	BlockFingerprinting bool      `json:"block_fingerprinting,omitempty"`
	CustomBlocklist     []string  `json:"custom_blocklist,omitempty"`
}

// ProtectionPolicy is one immutable policy value. Identifier is the
// target it applies to — a filesystem path ("/Applications/TestApp.app")
// or a bundle id ("com.example.app"). Mutation is replace-by-identifier
// through Store.Add, never in-place edit.
type ProtectionPolicy struct {
	Identifier string `json:"identifier"`

	Level ProtectionLevel `json:"protection_level"`

	Network NetworkFiltering `json:"network_filtering,omitempty"`

	DNS DNSFiltering `json:"dns_filtering,omitempty"`

	HardwareSpoofing SpoofLevel `json:"hardware_spoofing,omitempty"`

	RequiresVMIsolation bool `json:"requires_vm_isolation,omitempty"`

	// Parent is the identifier of an inherited policy. It is a lookup
	// reference only — the parent is not owned and may be absent from
	// the store.
	Parent string `json:"parent,omitempty"`
}

// Default returns the implicit default policy: identifier "*" with
// protection level basic and everything else at its zero value.
func Default() ProtectionPolicy {
	return ProtectionPolicy{
		Identifier: Wildcard,
		Level:      LevelBasic,
	}
}

// Clone returns a deep copy. Inner string slices are copied so the
// holder of a clone cannot mutate the original.
func (p ProtectionPolicy) Clone() ProtectionPolicy {
	clone := p
	clone.Network.AllowedDomains = copyStrings(p.Network.AllowedDomains)
	clone.Network.BlockedDomains = copyStrings(p.Network.BlockedDomains)
	clone.DNS.CustomBlocklist = copyStrings(p.DNS.CustomBlocklist)
	return clone
}

// Validate checks that a policy is well formed enough to store.
func (p ProtectionPolicy) Validate() error {
	if p.Identifier == "" {
		return fmt.Errorf("policy identifier is required")
	}
	if p.Level < LevelNone || p.Level > LevelParanoid {
		return fmt.Errorf("policy %q: invalid protection level %d", p.Identifier, int(p.Level))
	}
	return nil
}

func copyStrings(source []string) []string {
	if source == nil {
		return nil
	}
	result := make([]string, len(source))
	copy(result, source)
	return result
}
