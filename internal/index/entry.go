// Package index parses Packages and Sources index files into the flat
// universe of repository-relative file paths the delta scanner and sync job
// operate on.
package index

// FileEntry names one file the mirror is expected to carry in its pool, and
// the size it is expected to have.
type FileEntry struct {
	Path string
	Size int64
}

// UnknownSize marks a FileEntry whose size was not recoverable from its
// originating index, so delta scanning must fall back to presence-only. Both
// Packages and Sources indices carry a size for every file row they emit;
// this remains only as the fallback a caller can use when no size is
// available at all.
const UnknownSize int64 = -1
