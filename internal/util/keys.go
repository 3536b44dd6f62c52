package util

import (
	"fmt"
	"strconv"
	"strings"
)

// RowKey composes a flat storage key for (storeID, encodedKey).
// The store id is length-prefixed so that ids containing the separator
// cannot collide: "<prefix>:<len(storeID)>:<storeID>:<encodedKey>".
func RowKey(prefix, storeID, encodedKey string) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(storeID) + len(encodedKey) + 8)
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(len(storeID)))
	b.WriteByte(':')
	b.WriteString(storeID)
	b.WriteByte(':')
	b.WriteString(encodedKey)
	return b.String()
}

// SplitRowKey reverses RowKey.
func SplitRowKey(prefix, rowKey string) (storeID, encodedKey string, err error) {
	rest, ok := strings.CutPrefix(rowKey, prefix+":")
	if !ok {
		return "", "", fmt.Errorf("row key %q: missing prefix %q", rowKey, prefix)
	}
	lenStr, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return "", "", fmt.Errorf("row key %q: missing store id length", rowKey)
	}
	n, err := strconv.Atoi(lenStr)
	if err != nil || n < 0 || n+1 > len(rest) || rest[n] != ':' {
		return "", "", fmt.Errorf("row key %q: bad store id length", rowKey)
	}
	return rest[:n], rest[n+1:], nil
}
