package malh

import "bytes"

// splitAttrs splits a tuple's comma-joined bytes into its nattrs
// attributes. It does not allocate new backing arrays — each returned
// slice aliases data.
func splitAttrs(data []byte, nattrs int) [][]byte {
	attrs := make([][]byte, 0, nattrs)
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == ',' {
			attrs = append(attrs, data[start:i])
			start = i + 1
		}
	}
	attrs = append(attrs, data[start:])
	return attrs
}

// joinTuple comma-joins a tuple's attribute strings into its on-disk byte
// representation (without the terminator, which the page layer appends).
func joinTuple(attrs []string) []byte {
	var buf bytes.Buffer
	for i, a := range attrs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(a)
	}
	return buf.Bytes()
}

// tupleMatchesTemplate reports whether a stored tuple's attributes equal
// the template's literal fields; wildcard fields ("?") are skipped.
func tupleMatchesTemplate(tupleAttrs [][]byte, template [][]byte) bool {
	for i, field := range template {
		if bytes.Equal(field, wildcardBytes) {
			continue
		}
		if i >= len(tupleAttrs) || !bytes.Equal(field, tupleAttrs[i]) {
			return false
		}
	}
	return true
}

var wildcardBytes = []byte("?")
