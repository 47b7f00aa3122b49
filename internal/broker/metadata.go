package broker

import (
	"strconv"
	"strings"
)

// Metadata keys. The sweep counter and death history must round-trip
// through every transport, so both the listener and the sweeper read and
// write them only through the helpers below.
const (
	metaCorrelationID   = "x-correlation-id"
	metaFirstDeathQueue = "x-first-death-queue"
	metaDeathCount      = "x-death-count"
	metaRoutingKey      = "x-routing-key"
	metaSweepCount      = "x-dlq-retry-count"
	metaException       = "x-exception-message"
	metaFailureClass    = "x-failure-class"
)

func metaGet(msg *Message, key string) string {
	if msg == nil || msg.Metadata == nil {
		return ""
	}
	return msg.Metadata[key]
}

func metaSet(msg *Message, key, value string) {
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string)
	}
	msg.Metadata[key] = value
}

// CorrelationID reads the correlation id stamped at pipeline entry.
func CorrelationID(msg *Message) string {
	return metaGet(msg, metaCorrelationID)
}

// SetCorrelationID stamps the correlation id.
func SetCorrelationID(msg *Message, id string) {
	metaSet(msg, metaCorrelationID, id)
}

// SweepCount reads the sweeper's attempt counter. The custom header is
// the canonical source of truth; a message dead-lettered before the
// counter existed falls back to the transport death count, mapped as
// max(0, deaths-1) because the first death is not a sweep retry.
func SweepCount(msg *Message) int {
	if raw := metaGet(msg, metaSweepCount); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	if deaths := DeathCount(msg); deaths > 1 {
		return deaths - 1
	}
	return 0
}

// SetSweepCount writes the sweeper's attempt counter back into metadata.
func SetSweepCount(msg *Message, n int) {
	metaSet(msg, metaSweepCount, strconv.Itoa(n))
}

// DeathCount reads how many times the message has been dead-lettered.
func DeathCount(msg *Message) int {
	if raw := metaGet(msg, metaDeathCount); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// FirstDeathQueue reads the queue the message first died on.
func FirstDeathQueue(msg *Message) string {
	return metaGet(msg, metaFirstDeathQueue)
}

// FailureClass reads the ledger classification stamped when the message
// was dead-lettered, if the failure carried one.
func FailureClass(msg *Message) string {
	return metaGet(msg, metaFailureClass)
}

// Exception reads the error text of the failure that dead-lettered the
// message.
func Exception(msg *Message) string {
	return metaGet(msg, metaException)
}

// OriginQueue resolves the queue a dead-lettered message should return
// to: death metadata first, then the "<queue>.dlq" routing-key
// convention. Empty means the origin is unknowable and the message must
// be treated as permanently failed.
func OriginQueue(msg *Message) string {
	if q := FirstDeathQueue(msg); q != "" {
		return q
	}
	if rk := metaGet(msg, metaRoutingKey); strings.HasSuffix(rk, ".dlq") {
		return strings.TrimSuffix(rk, ".dlq")
	}
	return ""
}

// markDeath records one dead-lettering from queue onto the message,
// preserving the first death queue across later deaths.
func markDeath(msg *Message, queue string, cause error, class string) {
	if FirstDeathQueue(msg) == "" {
		metaSet(msg, metaFirstDeathQueue, queue)
	}
	metaSet(msg, metaDeathCount, strconv.Itoa(DeathCount(msg)+1))
	metaSet(msg, metaRoutingKey, queue+".dlq")
	if cause != nil {
		metaSet(msg, metaException, cause.Error())
	}
	if class != "" {
		metaSet(msg, metaFailureClass, class)
	}
}
