//go:build linux || darwin

package cookie

import (
	"os"
	"syscall"
)

func statDevIno(info os.FileInfo) (dev, ino uint64) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev), uint64(st.Ino)
	}
	return 0, 0
}
