package lockfile

import (
	"fmt"
	"sync"
)

// fileID identifies a file independently of the path used to open it.
type fileID struct {
	dev uint64
	ino uint64
}

var registry = struct {
	sync.Mutex
	open map[fileID]string
}{open: make(map[fileID]string)}

func register(id fileID, path string) error {
	registry.Lock()
	defer registry.Unlock()
	if prev, ok := registry.open[id]; ok {
		return fmt.Errorf("%w: already open in this process as %s", ErrLockContention, prev)
	}
	registry.open[id] = path
	return nil
}

func unregister(id fileID) {
	registry.Lock()
	defer registry.Unlock()
	delete(registry.open, id)
}

// OpenCount returns the number of files currently open in this process.
func OpenCount() int {
	registry.Lock()
	defer registry.Unlock()
	return len(registry.open)
}

// Held reports whether the file behind fd is open through a File in this
// process.
func Held(fd uintptr) (bool, error) {
	id, err := identify(fd)
	if err != nil {
		return false, err
	}
	registry.Lock()
	defer registry.Unlock()
	_, ok := registry.open[id]
	return ok, nil
}
