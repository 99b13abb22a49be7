// Package link assembles a reliable point-to-point link from its parts.
//
// A Link owns a request queue and a transmit FSM that frames requests
// onto a byte channel. A Receiver parses frames coming back on the same
// channel, raising ACK/NACK into the FSM and handing everything else to a
// PacketHandler. A DebugPrinter turns text into debug message frames.
package link
