package domain

// Batch is an ordered group of records concatenated into one request body.
// A Batch is owned by one component at a time; it is never shared.
type Batch struct {
	body  []byte
	count int
}

// NewBatch creates a new empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Add appends a record to the batch.
func (b *Batch) Add(r Record) {
	b.body = append(b.body, r.Bytes()...)
	b.count++
}

// Count returns the number of records in the batch.
func (b *Batch) Count() int {
	return b.count
}

// Bytes returns the size of the body in bytes.
func (b *Batch) Bytes() int {
	return len(b.body)
}

// Body returns the concatenated records.
func (b *Batch) Body() []byte {
	return b.body
}

// Empty returns true if the batch has no records.
func (b *Batch) Empty() bool {
	return b.count == 0
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.body = b.body[:0]
	b.count = 0
}
