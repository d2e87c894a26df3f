package core

import (
	"fmt"
	"strconv"
	"strings"
)

// heapObjectFields is the number of leading fields every data row carries.
const heapObjectFields = 3

// ParseHeapObject parses one data row: the object address and method table
// in hexadecimal followed by the size in decimal. Hex values use the full
// 64 bits, so addresses above the signed range wrap to negative int64 the
// way a BIGINT column stores them. Tokens after the third (the debugger's
// "Free" marker) are ignored.
func ParseHeapObject(line string) (HeapObject, error) {
	fields := strings.Fields(line)
	if len(fields) < heapObjectFields {
		return HeapObject{}, fmt.Errorf("%w: want %d fields, got %d in %q",
			ErrMalformedRecord, heapObjectFields, len(fields), line)
	}

	addr, err := parseHex(fields[0])
	if err != nil {
		return HeapObject{}, fmt.Errorf("%w: address %q: %v", ErrMalformedRecord, fields[0], err)
	}
	mt, err := parseHex(fields[1])
	if err != nil {
		return HeapObject{}, fmt.Errorf("%w: method table %q: %v", ErrMalformedRecord, fields[1], err)
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return HeapObject{}, fmt.Errorf("%w: size %q: %v", ErrMalformedRecord, fields[2], err)
	}

	return HeapObject{Address: addr, MethodTable: mt, Size: size}, nil
}

func parseHex(s string) (int64, error) {
	u, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}
