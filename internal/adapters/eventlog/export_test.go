package eventlog

import "os"

// SetSyncFunc replaces the fsync used by s.
func SetSyncFunc(s *FileStore, fn func(*os.File) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sync = fn
}
