package slimproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadSTAT reads and validates a client->server STAT frame: opcode "STAT",
// a uint32 length covering everything that follows it, then the fixed
// packed fields from CommandSTAT.hpp. A non-"STAT" opcode or a declared
// length shorter than the fixed struct is a ProtocolError at the caller.
func ReadSTAT(r io.Reader) (*STAT, error) {
	var opcode [4]byte
	if _, err := io.ReadFull(r, opcode[:]); err != nil {
		return nil, fmt.Errorf("slimproto: reading STAT opcode: %w", err)
	}
	if opcode != OpSTAT {
		return nil, ErrBadOpcode
	}

	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("slimproto: reading STAT length: %w", err)
	}
	if length < statMinSize {
		return nil, ErrShortFrame
	}

	var s STAT
	if err := binary.Read(r, binary.BigEndian, &s); err != nil {
		return nil, fmt.Errorf("slimproto: reading STAT body: %w", err)
	}
	if extra := int64(length) - statMinSize; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, extra); err != nil {
			return nil, fmt.Errorf("slimproto: reading STAT trailer: %w", err)
		}
	}
	return &s, nil
}
