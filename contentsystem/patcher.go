package contentsystem

import (
	"os"

	"github.com/polynite/warpdl/internal/xdelta3"
)

// fileSource adapts an *os.File to xdelta3.Source.
type fileSource struct{ f *os.File }

func (s fileSource) ReadAt(p []byte, off int64) (int, error) { return s.f.ReadAt(p, off) }
func (s fileSource) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, ioError(err)
	}
	return info.Size(), nil
}

// ApplyPatch applies the xdelta3 delta at diffPath to sourcePath,
// producing targetPath, per spec §4.8 / §4.7 item 7. On success the
// caller is responsible for renaming targetPath into place and removing
// the .diff sidecar; ApplyPatch itself only produces the `.patched` file.
func ApplyPatch(sourcePath, diffPath, targetPath string, onWrite func(n int) error) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return ioError(err)
	}
	defer src.Close()

	diff, err := os.Open(diffPath)
	if err != nil {
		return ioError(err)
	}
	defer diff.Close()

	out, err := os.Create(targetPath)
	if err != nil {
		return ioError(err)
	}
	defer out.Close()

	err = xdelta3.Decode(diff, fileSource{f: src}, func(chunk []byte) error {
		if _, werr := out.Write(chunk); werr != nil {
			return ioError(werr)
		}
		if onWrite != nil {
			return onWrite(len(chunk))
		}
		return nil
	})
	if err != nil {
		return xdeltaError(err.Error())
	}
	if err := out.Sync(); err != nil {
		return ioError(err)
	}
	return nil
}
