//go:build !linux

package contentsystem

import (
	"os"

	"github.com/sirupsen/logrus"
)

// preallocate is a no-op outside Linux: fallocate has no portable
// equivalent, so callers just get a sparse file and a warning (spec §5
// "Where preallocation is unavailable, implementations MAY no-op with a
// warning").
func preallocate(f *os.File, size int64) error {
	logrus.WithField("file", f.Name()).Warn("preallocation unsupported on this platform, file will be sparse")
	return nil
}
