package message

import "bytes"

// indexOf returns the first position of sep in buf, or -1.
func indexOf(buf, sep []byte) int {
	return bytes.Index(buf, sep)
}

// trimStart drops the first n bytes of buf, moving the unconsumed tail to the
// front so the backing array is reused.
func trimStart(buf []byte, n int) []byte {
	if n >= len(buf) {
		return buf[:0]
	}
	m := copy(buf, buf[n:])
	return buf[:m]
}

// resizeAndCopy appends src to buf[:used], growing the backing array when
// needed. Bytes before used are preserved.
func resizeAndCopy(buf []byte, used int, src []byte) []byte {
	need := used + len(src)
	if need > cap(buf) {
		size := 2 * cap(buf)
		if size < need {
			size = need
		}
		grown := make([]byte, used, size)
		copy(grown, buf[:used])
		buf = grown
	}
	buf = buf[:need]
	copy(buf[used:], src)
	return buf
}

// tail returns at most the last n bytes of buf.
func tail(buf []byte, n int) []byte {
	if len(buf) <= n {
		return buf
	}
	return buf[len(buf)-n:]
}
