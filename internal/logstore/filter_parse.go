package logstore

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSizeFilter parses an operator size filter: "=N", "<N", ">N",
// or a bare "N" meaning equality (spec.md §4.2's (=, <, >) set).
func ParseSizeFilter(raw string) (SizeFilter, error) {
	if raw == "" {
		return SizeFilter{}, fmt.Errorf("logstore: empty size filter")
	}
	op := SizeEQ
	switch raw[0] {
	case '<':
		op = SizeLT
		raw = raw[1:]
	case '>':
		op = SizeGT
		raw = raw[1:]
	case '=':
		raw = raw[1:]
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return SizeFilter{}, fmt.Errorf("logstore: invalid size filter %q", raw)
	}
	return SizeFilter{Op: op, Value: value}, nil
}

var protocolNames = map[string]Protocol{
	"ftp":  ProtocolFTP,
	"smtp": ProtocolSMTP,
	"loc":  ProtocolLOC,
	"scp":  ProtocolSCP,
	"wmo":  ProtocolWMO,
	"map":  ProtocolMAP,
}

// ParseProtocolMask turns a comma-separated protocol name list into a
// Query.ProtocolMask bit set.
func ParseProtocolMask(raw string) (uint8, error) {
	var mask uint8
	for _, name := range strings.Split(raw, ",") {
		p, ok := protocolNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("logstore: unknown protocol %q", name)
		}
		mask |= 1 << uint(p)
	}
	return mask, nil
}
