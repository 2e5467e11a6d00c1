package gate

import (
	"os"

	"github.com/boshu2/gatekeeper/internal/atomicfile"
)

// atomicWrite commits materialized content to resolvedPath via
// create-or-replace with an atomic rename (spec §4.7 G8), so concurrent
// readers never observe a half-written file.
func atomicWrite(resolvedPath string, content []byte) error {
	return atomicfile.WriteBytes(resolvedPath, content)
}

// revert restores resolvedPath to its pre-G8 state: rewritten to preImage
// if the file existed before, or removed entirely if G8 created it (spec
// §4.7 G9/G10: "restore the pre-image, truncating if the file was newly
// created").
func revert(resolvedPath string, preImage []byte, existed bool) error {
	if existed {
		return atomicfile.WriteBytes(resolvedPath, preImage)
	}
	if err := os.Remove(resolvedPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
