package models

import (
	"strings"
	"time"
)

// Node types advertised by MeshCore firmware.
const (
	AdvTypeChat     = "chat"
	AdvTypeRepeater = "repeater"
	AdvTypeRoom     = "room"
	AdvTypeNone     = "none"
)

// Node is the current snapshot of a mesh node, keyed by its full public key.
// The public key is the only cross-entity join key; pubkey prefixes and
// channel indices elsewhere are local hints.
type Node struct {
	PublicKey string     `db:"public_key"`
	Name      *string    `db:"name"`
	AdvType   *string    `db:"adv_type"`
	Flags     *int64     `db:"flags"`
	FirstSeen time.Time  `db:"first_seen"`
	LastSeen  *time.Time `db:"last_seen"`
}

// PubKeyPrefix returns the 12-character sender hint for this node.
func (n *Node) PubKeyPrefix() string {
	if len(n.PublicKey) < 12 {
		return n.PublicKey
	}
	return n.PublicKey[:12]
}

// NodeTag is an operator-managed annotation on a node. The collector only
// reads tags (friendly_name enrichment); the tag-management surface owns
// writes.
type NodeTag struct {
	NodePublicKey string `db:"node_public_key"`
	TagKey        string `db:"tag_key"`
	TagValue      string `db:"tag_value"`
}

// NormalizePublicKey validates and canonicalizes a full 64-hex public key.
// Returns the empty string when the value is not a valid identity.
func NormalizePublicKey(value string) string {
	v := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(value), "0x"), "0X")
	v = strings.ToUpper(v)
	if len(v) != 64 || !isHex(v) {
		return ""
	}
	return v
}

// NormalizePubKeyPrefix canonicalizes a sender key hint to 12 upper-case hex
// characters. Values shorter than 8 hex characters are rejected as too
// ambiguous to be useful.
func NormalizePubKeyPrefix(value string) string {
	v := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(value), "0x"), "0X")
	v = strings.ToUpper(v)
	if len(v) < 8 || !isHex(v) {
		return ""
	}
	if len(v) > 12 {
		v = v[:12]
	}
	return v
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
