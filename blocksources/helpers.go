package blocksources

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// closerFunc adapts a function to io.Closer
type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

var nopCloser io.Closer = closerFunc(func() error { return nil })

func loggerOrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
