//go:build linux

package shmem

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const keyProject = 0x49 // 'I'

// DeriveKey creates a fresh key file under dir (os.TempDir when empty) and
// derives a System V IPC key from it, ftok style. The returned path must be
// kept for the segment's lifetime and removed by the creator on destroy.
func DeriveKey(dir string) (int, string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("ipclab-%s.key", uuid.NewString()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, "", errors.Wrap(err, "create key file")
	}
	f.Close()

	key, err := KeyForPath(path)
	if err != nil {
		os.Remove(path)
		return 0, "", err
	}
	return key, path, nil
}

// KeyForPath derives the IPC key for an existing file, matching ftok(3)
// semantics so independent processes naming the same file agree on the key.
func KeyForPath(path string) (int, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(path, &st); err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	key := int(uint32(st.Ino&0xffff) | uint32((st.Dev&0xff)<<16) | uint32(keyProject<<24))
	return key, nil
}
