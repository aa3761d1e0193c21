// Package xid mints prefixed identifiers such as "ord-mewv0k1s-9f3a01cc84d2".
// The base-36 millisecond timestamp keeps ids roughly sortable by creation
// time; the random suffix makes collisions within one millisecond negligible.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

func New(prefix string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; degrade to a
		// timestamp-only id rather than panic in an id helper.
		return prefix + "-" + ts + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return prefix + "-" + ts + "-" + hex.EncodeToString(buf)
}
