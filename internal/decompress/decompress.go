// Package decompress opens archive index files, transparently decompressing
// the subset of encodings the mirror actually publishes.
package decompress

import (
	"bufio"
	"compress/gzip"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

// bufferSize matches the teacher's buffered-writer convention in
// downloader.go: decompressing readers are wrapped in a generous buffer so a
// slow upstream compressor doesn't force one syscall per read() call.
const bufferSize = 128 * 1024

// ErrUnsupportedExtension is returned when a file carries an extension this
// package does not know how to decompress. A file with no extension at all
// is not an error - it is read as plain bytes.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// Open wraps r, decompressing it according to name's extension. Recognized
// extensions are ".gz" and ".xz"; anything else that looks like an extension
// is rejected with ErrUnsupportedExtension, and a name with no extension is
// passed through unmodified.
func Open(r io.Reader, name string) (io.Reader, error) {
	buffered := bufio.NewReaderSize(r, bufferSize)

	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case "":
		return buffered, nil
	case ".gz":
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, errors.Wrapf(err, "opening gzip stream %s", name)
		}
		return gz, nil
	case ".xz":
		xr, err := xz.NewReader(buffered)
		if err != nil {
			return nil, errors.Wrapf(err, "opening xz stream %s", name)
		}
		return xr, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedExtension, "%s", ext)
	}
}

// StripExtension returns name with its compression suffix removed, e.g.
// "Packages.gz" -> "Packages". Matching is case-insensitive, matching Open.
// Names without a recognized suffix are returned unchanged.
func StripExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".gz", ".xz":
		return name[:len(name)-len(ext)]
	default:
		return name
	}
}
