package device

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Reason explains why a device is unavailable.
type Reason string

// Unavailability reasons.
const (
	ReasonNone              Reason = ""
	ReasonReconnecting      Reason = "reconnecting"
	ReasonUnauthenticated   Reason = "unauthenticated"
	ReasonRemovedExternally Reason = "removed_externally"
	ReasonVersionRepair     Reason = "version_repair"
	ReasonOffline           Reason = "offline"
)

// Message returns the human-readable text for a reason.
func (r Reason) Message() string {
	switch r {
	case ReasonReconnecting:
		return "Reconnecting to the remote service"
	case ReasonUnauthenticated:
		return "Not logged in to the remote account"
	case ReasonRemovedExternally:
		return "Device was removed from the remote account"
	case ReasonVersionRepair:
		return "Device was paired with an older version and must be paired again"
	case ReasonOffline:
		return "Device is offline"
	default:
		return ""
	}
}

// MinPairedAppVersion is the oldest pairing that is still usable.
const MinPairedAppVersion = "2.0.0"

// NeedsRepair reports whether a device paired with appVersion must be
// paired again. A missing or unparsable version needs repair.
func NeedsRepair(appVersion string) bool {
	v := canonicalVersion(appVersion)
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(v, canonicalVersion(MinPairedAppVersion)) < 0
}

// VersionAtLeast reports whether a dotted firmware version such as "5.6.1"
// or "5.6" is at least min. Unparsable versions never satisfy the check.
func VersionAtLeast(version, minimum string) bool {
	v := canonicalVersion(version)
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, canonicalVersion(minimum)) >= 0
}

// canonicalVersion turns "5.6" or "v5.6.0" into semver's "v5.6.0" form.
// Suffixes after a dash or plus are kept for semver to judge.
func canonicalVersion(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return s
}
