// Package kfmt implements the kernel's logging primitives: a small Printf
// subset, an early output buffer used before any output device is attached,
// and the kernel panic routine.
package kfmt

import (
	"io"
	"strconv"
)

// maxPadLen caps the width that can be requested by a formatting verb.
const maxPadLen = 64

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the early output buffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the early output buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		flushEarlyOutput(w)
	}
}

// GetOutputSink returns the default target for calls to Printf.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf formats its arguments and sends them to the active output sink.
// The supported verbs are a subset of those understood by fmt.Printf:
//
//	%s  string or byte slice
//	%d  integer, base 10
//	%o  integer, base 8
//	%x  integer, base 16 with lower-case letters
//	%t  bool
//	%%  a literal percent sign
//
// A decimal width may precede the verb. Strings and base-10 integers are
// left-padded with spaces; base-8 and base-16 integers with zeroes.
//
// Each call emits its output with a single write so lines produced by
// different contexts do not interleave.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the early output buffer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		scratch [256]byte
		out     = scratch[:0]
		argIdx  int
	)

	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			out = append(out, format[i])
			continue
		}

		padLen := 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			if padLen = padLen*10 + int(format[i]-'0'); padLen > maxPadLen {
				padLen = maxPadLen
			}
		}

		if i == len(format) {
			out = append(out, errNoVerb...)
			break
		}

		verb := format[i]
		switch verb {
		case '%':
			out = append(out, '%')
			continue
		case 'd', 'o', 'x', 's', 't':
		default:
			out = append(out, errNoVerb...)
			continue
		}

		if argIdx >= len(args) {
			out = append(out, errMissingArg...)
			continue
		}

		arg := args[argIdx]
		argIdx++

		switch verb {
		case 'd':
			out = appendInt(out, arg, 10, padLen)
		case 'o':
			out = appendInt(out, arg, 8, padLen)
		case 'x':
			out = appendInt(out, arg, 16, padLen)
		case 's':
			out = appendString(out, arg, padLen)
		case 't':
			out = appendBool(out, arg)
		}
	}

	for ; argIdx < len(args); argIdx++ {
		out = append(out, errExtraArg...)
	}

	doWrite(w, out)
}

func appendBool(out []byte, v interface{}) []byte {
	b, ok := v.(bool)
	switch {
	case !ok:
		return append(out, errWrongArgType...)
	case b:
		return append(out, trueValue...)
	default:
		return append(out, falseValue...)
	}
}

func appendString(out []byte, v interface{}, padLen int) []byte {
	switch s := v.(type) {
	case string:
		out = appendRepeat(out, ' ', padLen-len(s))
		return append(out, s...)
	case []byte:
		out = appendRepeat(out, ' ', padLen-len(s))
		return append(out, s...)
	default:
		return append(out, errWrongArgType...)
	}
}

func appendRepeat(out []byte, ch byte, count int) []byte {
	for ; count > 0; count-- {
		out = append(out, ch)
	}
	return out
}

// appendInt formats any built-in integer type in the requested base. Base-10
// values are space padded with the sign next to the digits; other bases are
// zero padded with the sign in front of the padding.
func appendInt(out []byte, v interface{}, base, padLen int) []byte {
	var (
		mag      uint64
		negative bool
	)

	switch n := v.(type) {
	case uint8:
		mag = uint64(n)
	case uint16:
		mag = uint64(n)
	case uint32:
		mag = uint64(n)
	case uint64:
		mag = n
	case uint:
		mag = uint64(n)
	case uintptr:
		mag = uint64(n)
	case int8:
		mag, negative = splitSign(int64(n))
	case int16:
		mag, negative = splitSign(int64(n))
	case int32:
		mag, negative = splitSign(int64(n))
	case int64:
		mag, negative = splitSign(n)
	case int:
		mag, negative = splitSign(int64(n))
	default:
		return append(out, errWrongArgType...)
	}

	var digitBuf [64]byte
	digits := strconv.AppendUint(digitBuf[:0], mag, base)

	width := len(digits)
	if negative {
		width++
	}

	if base == 10 {
		out = appendRepeat(out, ' ', padLen-width)
		if negative {
			out = append(out, '-')
		}
	} else {
		if negative {
			out = append(out, '-')
		}
		out = appendRepeat(out, '0', padLen-width)
	}

	return append(out, digits...)
}

func splitSign(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func doWrite(w io.Writer, p []byte) {
	if len(p) == 0 {
		return
	}

	if w != nil {
		_, _ = w.Write(p)
		return
	}

	writeEarlyOutput(p)
}
