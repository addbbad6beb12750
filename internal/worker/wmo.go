package worker

import "strings"

const (
	wmoSOH = 0x01
	wmoCR  = 0x0D
	wmoLF  = 0x0A
	wmoETX = 0x03
)

// wmoHeader synthesizes the WMO-style header spec.md §4.4's
// "filename-is-header" special flag prepends to a file body: SOH, two
// CRs and an LF, then the filename with each '_', '-' or ' '
// replaced by a space — stopping at the first ';' or the end of the
// string — then two more CRs and an LF. Ported from sf_scp.c's
// buffer-filling loop byte for byte.
func wmoHeader(filename string) []byte {
	var b strings.Builder
	b.WriteByte(wmoSOH)
	b.WriteByte(wmoCR)
	b.WriteByte(wmoCR)
	b.WriteByte(wmoLF)
	b.WriteString(wmoHeaderName(filename))
	b.WriteByte(wmoCR)
	b.WriteByte(wmoCR)
	b.WriteByte(wmoLF)
	return []byte(b.String())
}

// wmoTrailer is appended after the file body when the header flag is
// set: two CRs, an LF, and an ETX.
func wmoTrailer() []byte {
	return []byte{wmoCR, wmoCR, wmoLF, wmoETX}
}

func wmoHeaderName(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		switch r {
		case ';':
			return b.String()
		case '_', '-', ' ':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
