package source

import (
	"bufio"
	"context"
	"io"
)

// maxLine bounds a single line read from a stream.
const maxLine = 1 << 20

// ReadLines delivers each line of r to handle until EOF or until ctx is
// cancelled. Cancellation is checked between lines.
func ReadLines(ctx context.Context, r io.Reader, handle func(line string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		handle(sc.Text())
	}
	return sc.Err()
}
