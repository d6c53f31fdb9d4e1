package domain

// Record is one encoded bulk entry: the newline-terminated action line
// followed by the newline-terminated document line.
type Record struct {
	data []byte
}

// NewRecord joins an action line and a document line into a Record.
// Trailing newlines are added when missing.
func NewRecord(action, doc []byte) Record {
	buf := make([]byte, 0, len(action)+len(doc)+2)
	buf = appendLine(buf, action)
	buf = appendLine(buf, doc)
	return Record{data: buf}
}

// RawRecord wraps pre-encoded bulk bytes without copying.
func RawRecord(b []byte) Record {
	return Record{data: b}
}

// Bytes returns the encoded entry.
func (r Record) Bytes() []byte {
	return r.data
}

// Len returns the encoded size in bytes.
func (r Record) Len() int {
	return len(r.data)
}

func appendLine(dst, line []byte) []byte {
	dst = append(dst, line...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		dst = append(dst, '\n')
	}
	return dst
}
