package slimproto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeFrame writes a server->client frame: opcode(4) + uint16 big-endian
// payload length + payload, per §4.5's "server→client length-prefixed
// (uint16)".
func writeFrame(w io.Writer, op Opcode, payload []byte) error {
	if _, err := w.Write(op[:]); err != nil {
		return fmt.Errorf("slimproto: writing %s opcode: %w", op, err)
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(payload))); err != nil {
		return fmt.Errorf("slimproto: writing %s length: %w", op, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("slimproto: writing %s payload: %w", op, err)
	}
	return nil
}

func (o Opcode) String() string { return string(o[:]) }

// WriteSTRM writes a STRM command (Start/Stop/Time).
func WriteSTRM(w io.Writer, cmd STRMCommand) error {
	return writeFrame(w, OpSTRM, []byte{cmd.SubCommand})
}

// WriteSETD writes a SETD command.
func WriteSETD(w io.Writer, cmd SETDCommand) error {
	return writeFrame(w, OpSETD, []byte{cmd.RequestID})
}

// WriteAUDE writes an AUDE command.
func WriteAUDE(w io.Writer, cmd AUDECommand) error {
	payload := []byte{boolByte(cmd.EnableSPDIF), boolByte(cmd.EnableAnalog)}
	return writeFrame(w, OpAUDE, payload)
}

// WriteAUDG writes an AUDG command.
func WriteAUDG(w io.Writer, cmd AUDGCommand) error {
	payload := make([]byte, 16)
	binary.BigEndian.PutUint32(payload[0:4], cmd.OldGainLeft)
	binary.BigEndian.PutUint32(payload[4:8], cmd.OldGainRight)
	binary.BigEndian.PutUint32(payload[8:12], cmd.GainLeft)
	binary.BigEndian.PutUint32(payload[12:16], cmd.GainRight)
	return writeFrame(w, OpAUDG, payload)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
