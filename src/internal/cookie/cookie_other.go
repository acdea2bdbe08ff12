//go:build !linux && !darwin

package cookie

import "os"

func statDevIno(info os.FileInfo) (dev, ino uint64) {
	return 0, 0
}
