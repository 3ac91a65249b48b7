// Package cortexm encodes ARMv7-M task contexts on a byte stack.
//
// A saved context is 16 words at the saved stack pointer: R4-R11, pushed by
// the switch handler, followed by the frame the core stacks on exception entry
// (R0, R1, R2, R3, R12, LR, PC, xPSR). Stacks grow down and words are little
// endian.
package cortexm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameWords is the size of a saved context in words.
	FrameWords = 16
	// FrameBytes is the size of a saved context in bytes.
	FrameBytes = FrameWords * 4

	// XPSRThumb is the execution state bit. Exception return with it clear
	// faults.
	XPSRThumb uint32 = 0x01000000

	// ExcReturnThreadPSP returns to thread mode on the process stack.
	ExcReturnThreadPSP uint32 = 0xFFFFFFFD
)

var (
	ErrStackOverflow  = errors.New("cortexm: stack overflow")
	ErrStackUnderflow = errors.New("cortexm: stack underflow")
	ErrUnaligned      = errors.New("cortexm: unaligned stack pointer")
	ErrInvalidState   = errors.New("cortexm: invalid execution state")
)

// Regs is the core register file.
type Regs struct {
	R    [13]uint32 // R0-R12
	SP   uint32     // PSP
	LR   uint32
	PC   uint32
	XPSR uint32
}

func (r *Regs) String() string {
	return fmt.Sprintf("r0=%#08x r1=%#08x r4=%#08x sp=%#08x lr=%#08x pc=%#08x xpsr=%#08x",
		r.R[0], r.R[1], r.R[4], r.SP, r.LR, r.PC, r.XPSR)
}

// Frame is a decoded saved context.
type Frame struct {
	Callee [8]uint32 // R4-R11

	R0, R1, R2, R3 uint32
	R12            uint32
	LR             uint32
	PC             uint32
	XPSR           uint32
}

// Word offsets inside a frame.
const (
	offR4   = 0
	offR0   = 8
	offR1   = 9
	offR2   = 10
	offR3   = 11
	offR12  = 12
	offLR   = 13
	offPC   = 14
	offXPSR = 15
)

// Prime lays out the initial context of a task at the top of stack and
// returns the saved SP. The first restore enters entry with arg in R0; LR is
// EXC_RETURN so a task that returns from entry faults.
func Prime(stack []byte, entry, arg uint32) uint32 {
	top := uint32(len(stack)) &^ 7
	r := Regs{
		PC:   entry,
		LR:   ExcReturnThreadPSP,
		XPSR: XPSRThumb,
	}
	r.R[0] = arg
	sp, err := Push(stack, top, &r)
	if err != nil {
		panic(fmt.Sprintf("cortexm: prime: %v", err))
	}
	return sp
}

// Push saves r below sp and returns the new SP.
func Push(stack []byte, sp uint32, r *Regs) (uint32, error) {
	if sp%4 != 0 {
		return 0, ErrUnaligned
	}
	if sp > uint32(len(stack)) {
		return 0, ErrStackUnderflow
	}
	if sp < FrameBytes {
		return 0, ErrStackOverflow
	}
	sp -= FrameBytes

	w := words(stack[sp : sp+FrameBytes])
	for i := 0; i < 8; i++ {
		w.put(offR4+i, r.R[4+i])
	}
	w.put(offR0, r.R[0])
	w.put(offR1, r.R[1])
	w.put(offR2, r.R[2])
	w.put(offR3, r.R[3])
	w.put(offR12, r.R[12])
	w.put(offLR, r.LR)
	w.put(offPC, r.PC)
	w.put(offXPSR, r.XPSR)

	r.SP = sp
	return sp, nil
}

// Pop restores r from the context saved at sp. On success r.SP is the stack
// pointer after exception return.
func Pop(stack []byte, sp uint32, r *Regs) error {
	f, err := DecodeFrame(stack, sp)
	if err != nil {
		return err
	}
	if f.XPSR&XPSRThumb == 0 {
		return fmt.Errorf("%w: xpsr %#08x", ErrInvalidState, f.XPSR)
	}

	copy(r.R[4:12], f.Callee[:])
	r.R[0], r.R[1], r.R[2], r.R[3] = f.R0, f.R1, f.R2, f.R3
	r.R[12] = f.R12
	r.LR = f.LR
	r.PC = f.PC
	r.XPSR = f.XPSR
	r.SP = sp + FrameBytes
	return nil
}

// DecodeFrame reads the context saved at sp without modifying anything.
func DecodeFrame(stack []byte, sp uint32) (Frame, error) {
	if sp%4 != 0 {
		return Frame{}, ErrUnaligned
	}
	if uint64(sp)+FrameBytes > uint64(len(stack)) {
		return Frame{}, ErrStackUnderflow
	}

	w := words(stack[sp : sp+FrameBytes])
	var f Frame
	for i := range f.Callee {
		f.Callee[i] = w.get(offR4 + i)
	}
	f.R0 = w.get(offR0)
	f.R1 = w.get(offR1)
	f.R2 = w.get(offR2)
	f.R3 = w.get(offR3)
	f.R12 = w.get(offR12)
	f.LR = w.get(offLR)
	f.PC = w.get(offPC)
	f.XPSR = w.get(offXPSR)
	return f, nil
}

type words []byte

func (w words) get(i int) uint32 { return binary.LittleEndian.Uint32(w[i*4:]) }

func (w words) put(i int, v uint32) { binary.LittleEndian.PutUint32(w[i*4:], v) }
