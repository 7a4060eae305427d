package watcher

import (
	"encoding/hex"
	"strings"
)

// FormatUID renders uid as lowercase hex pairs joined by colons.
func FormatUID(uid []byte) string {
	if len(uid) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(uid)*3 - 1)
	for i, v := range uid {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex.EncodeToString([]byte{v}))
	}
	return b.String()
}
