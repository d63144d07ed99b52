// Package validation holds the format checks shared by the config loader
// and the broadcaster HTTP surface, adapted from the teacher's
// pkg/validation (itself built for account/stream fields) onto room and
// peer identifiers, display names, and ICE server URLs.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// RoomIDRegex validates room ID format.
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// PeerIDRegex validates peer ID format.
	PeerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRoomID validates a room ID path parameter before it reaches the
// scheduler, so a malformed value surfaces as 400 rather than a silently
// created room with a garbage key.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if len(roomID) > 100 {
		return fmt.Errorf("room id is too long (max 100 characters)")
	}
	if !RoomIDRegex.MatchString(roomID) {
		return fmt.Errorf("invalid room id format")
	}
	return nil
}

// ValidatePeerID validates a peer ID path parameter or request body field.
func ValidatePeerID(peerID string) error {
	if peerID == "" {
		return fmt.Errorf("peer id is required")
	}
	if len(peerID) > 100 {
		return fmt.Errorf("peer id is too long (max 100 characters)")
	}
	if !PeerIDRegex.MatchString(peerID) {
		return fmt.Errorf("invalid peer id format")
	}
	return nil
}

// ValidateDisplayName validates the broadcaster's displayName field.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) > 100 {
		return fmt.Errorf("display name is too long (max 100 characters)")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return nil
}

// ValidateICEServerURL validates a single ICE server URL from config, which
// must be a turn/turns/stun URL rather than an http(s)/ws(s) one.
func ValidateICEServerURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("ICE server URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid ICE server URL: %w", err)
	}
	switch u.Scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return fmt.Errorf("invalid ICE server URL scheme %q (must be stun, stuns, turn, or turns)", u.Scheme)
	}
	if u.Opaque == "" && u.Host == "" {
		return fmt.Errorf("ICE server URL must name a host")
	}
	return nil
}

// ValidateBitrateKbps validates a max-bitrate config value expressed in
// kilobits per second.
func ValidateBitrateKbps(bitrate int) error {
	if bitrate < 0 {
		return fmt.Errorf("bitrate must be >= 0")
	}
	if bitrate > 0 && bitrate < 100 {
		return fmt.Errorf("bitrate must be at least 100 kbps when set")
	}
	if bitrate > 100000 {
		return fmt.Errorf("bitrate is too high (max 100000 kbps)")
	}
	return nil
}

// ValidateNonEmptyString validates that a string is not empty after trimming.
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
