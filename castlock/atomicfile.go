package castlock

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

// WriteAtomic writes data to path via a sibling temp file, fsync, and
// rename — the atomic-write contract spec §4.9 gives the applier and
// which index/peerstate/objectstore persistence reuse verbatim: "write
// to a sibling temp file in the same directory with restrictive
// permissions; fsync; rename over the target. The rename is the commit
// point. A crash before rename leaves no visible change."
//
// Grounded on the pack's mattcburns-shoal-provision iso-builder.go and
// calvinalkan-agent-task/pkg/slotcache temp-then-rename pattern.
func WriteAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.cast-tmp-%d", filepath.Base(path), rand.Int63()))

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer os.Remove(tmp) // no-op once the rename below succeeds

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
