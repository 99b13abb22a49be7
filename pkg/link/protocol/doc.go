// Package protocol defines the host/target wire format.
package protocol

// Every packet travels in a frame bounded by fixed sentinels so a receiver
// can resynchronise on a byte stream after loss or corruption:
//
//   offset 0    preamble        u16 0xFF7F
//   offset 2    type code       u8
//   offset 3    direction       u8  (0xAA target->host, 0xBB host->target)
//   offset 4    payload length  u16
//   offset 6    payload         N bytes, N <= 256
//   offset 6+N  checksum        u32 CRC-32 (IEEE) over header and payload
//   offset 10+N postamble       u16 0xDEDF
//
// All multi-byte fields are little-endian.
