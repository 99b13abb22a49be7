package protocol

import (
	"strings"
)

const hexDigits = "0123456789ABCDEF"

// HexString formats bytes as "[ 0x7F 0xFF ... ]".
func HexString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b)*5 + 3)
	sb.WriteString("[")
	for _, c := range b {
		sb.WriteString(" 0x")
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}
	sb.WriteString(" ]")
	return sb.String()
}

// ASCIIString formats bytes as text, replacing non-printable bytes with '.'.
func ASCIIString(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			c = '.'
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
