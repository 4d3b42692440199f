package cmdutil

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// ReadInput reads a file, or stdin when path is "-".
func ReadInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	return data, errors.Wrapf(err, "error reading %s", path)
}
