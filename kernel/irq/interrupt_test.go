package irq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"kcore/kernel/cpu"
	"kcore/kernel/kfmt"
	"kcore/kernel/sync"
)

func TestDispatch(t *testing.T) {
	defer HandleInterrupt(GPFException, nil)

	var (
		gotFrame *Frame
		gotRegs  *Regs
		irqState bool
	)

	HandleInterrupt(GPFException, func(frame *Frame, regs *Regs) {
		gotFrame, gotRegs = frame, regs
		irqState = cpu.InterruptsEnabled()
		regs.EAX = 0xbadf00d
	})

	defer cpu.DisableInterrupts()
	cpu.EnableInterrupts()

	frame := &Frame{EIP: 0x100000}
	regs := &Regs{Info: 0x10}
	require.True(t, Dispatch(GPFException, frame, regs))

	require.Equal(t, frame, gotFrame)
	require.Equal(t, regs, gotRegs)
	require.False(t, irqState, "expected interrupts to be disabled while the handler runs")
	require.True(t, cpu.InterruptsEnabled(), "expected interrupt state to be restored")
	require.Equal(t, uint32(0xbadf00d), regs.EAX)
}

func TestDispatchUnhandled(t *testing.T) {
	defer kfmt.SetOutputSink(kfmt.GetOutputSink())

	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)
	buf.Reset()

	before := Unhandled()
	require.False(t, Dispatch(RTC, &Frame{}, &Regs{}))
	require.Equal(t, before+1, Unhandled())
	require.Equal(t, "[irq] unhandled interrupt 40\n", buf.String())
}

func TestHandlerRegistersHandler(t *testing.T) {
	defer func() {
		HandleInterrupt(Timer, nil)
		HandleInterrupt(PageFaultException, nil)
	}()

	var ticks int
	HandleInterrupt(Timer, func(_ *Frame, _ *Regs) {
		HandleInterrupt(PageFaultException, func(_ *Frame, _ *Regs) { ticks++ })
	})

	require.True(t, Dispatch(Timer, &Frame{}, &Regs{}))
	require.True(t, Dispatch(PageFaultException, &Frame{}, &Regs{}))
	require.Equal(t, 1, ticks)
}

func TestKeyboardRingBuffer(t *testing.T) {
	defer HandleInterrupt(Keyboard, nil)

	// The keyboard handler is the only producer and the foreground loop the
	// only consumer of the scancode buffer.
	scancodes := sync.NewRingBuffer[uint8](8)
	HandleInterrupt(Keyboard, func(_ *Frame, regs *Regs) {
		scancodes.Write(uint8(regs.Info))
	})

	var (
		done = make(chan struct{})
		got  []uint8
	)
	go func() {
		defer close(done)
		for len(got) < 5 {
			if code, ok := scancodes.Read(); ok {
				got = append(got, code)
			}
		}
	}()

	for _, code := range []uint32{0x1e, 0x30, 0x2e, 0x20, 0x12} {
		require.True(t, Dispatch(Keyboard, &Frame{}, &Regs{Info: code}))
	}
	<-done

	require.Equal(t, []uint8{0x1e, 0x30, 0x2e, 0x20, 0x12}, got)
}

func TestRegsDumpTo(t *testing.T) {
	regs := Regs{
		EAX:  1,
		EBX:  2,
		ECX:  3,
		EDX:  4,
		ESI:  5,
		EDI:  6,
		EBP:  7,
		Info: 8,
	}

	var buf bytes.Buffer
	regs.DumpTo(&buf)

	exp := "EAX = 00000001 EBX = 00000002\nECX = 00000003 EDX = 00000004\nESI = 00000005 EDI = 00000006\nEBP = 00000007 INF = 00000008\n"
	require.Equal(t, exp, buf.String())
}

func TestFrameDumpTo(t *testing.T) {
	frame := Frame{
		EIP:    1,
		CS:     2,
		EFlags: 3,
		ESP:    4,
		SS:     5,
	}

	var buf bytes.Buffer
	frame.DumpTo(&buf)

	exp := "EIP = 00000001 CS  = 00000002\nESP = 00000004 SS  = 00000005\nEFL = 00000003\n"
	require.Equal(t, exp, buf.String())
}
