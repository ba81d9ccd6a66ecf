package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Event identity hashes. Multiple gateways report the same logical event;
// these deterministic digests let the storage layer reject duplicates with a
// unique constraint. Receiver-specific fields never participate.

const hashBucket = 5 * time.Minute

func digest(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func bucket(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	step := int64(hashBucket / time.Second)
	return strconv.FormatInt(t.Unix()/step*step, 10)
}

// MessageHash identifies a message by content and sender, not by receiver.
func MessageHash(text, pubkeyPrefix string, channelIdx *int, senderTimestamp *time.Time, txtType *int) string {
	idx, ts, tt := "", "", ""
	if channelIdx != nil {
		idx = strconv.Itoa(*channelIdx)
	}
	if senderTimestamp != nil {
		ts = senderTimestamp.UTC().Format(time.RFC3339)
	}
	if txtType != nil {
		tt = strconv.Itoa(*txtType)
	}
	return digest(text, pubkeyPrefix, idx, ts, tt)
}

// AdvertisementHash identifies an advertisement within a 5-minute bucket;
// nodes advertise periodically and repeats inside a bucket are duplicates.
func AdvertisementHash(publicKey, name, advType string, flags *int64, receivedAt time.Time) string {
	f := ""
	if flags != nil {
		f = strconv.FormatInt(*flags, 10)
	}
	return digest(publicKey, name, advType, f, bucket(receivedAt))
}

// TraceHash identifies a trace result; the initiator tag is unique per trace.
func TraceHash(initiatorTag int64) string {
	return digest(strconv.FormatInt(initiatorTag, 10))
}

// TelemetryHash identifies a telemetry report within a 5-minute bucket.
func TelemetryHash(nodePublicKey string, parsed map[string]float64, receivedAt time.Time) string {
	data := ""
	if len(parsed) > 0 {
		keys := make([]string, 0, len(parsed))
		for k := range parsed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s=%v;", k, parsed[k])
		}
		data = sb.String()
	}
	return digest(nodePublicKey, data, bucket(receivedAt))
}
