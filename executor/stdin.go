package executor

import (
	"io"
	"strings"

	"github.com/caffeineduck/dotstar/future"
)

// StdinReader reads guest source from a stream.
type StdinReader struct {
	r io.Reader
}

func NewStdinReader(r io.Reader) *StdinReader {
	return &StdinReader{r: r}
}

// Read returns a future of everything read until EOF. A nil reader yields
// the empty string.
func (s *StdinReader) Read() *future.Future[string] {
	if s.r == nil {
		return future.Resolved("")
	}
	return future.Go(func() (string, error) {
		var sb strings.Builder
		if _, err := io.Copy(&sb, s.r); err != nil {
			return "", err
		}
		return sb.String(), nil
	})
}
