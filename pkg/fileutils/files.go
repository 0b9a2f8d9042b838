package fileutils

import "os"

// FileExists checks if a regular file exists
func FileExists(filename string) bool {
	f, err := os.Stat(filename)
	return err == nil && !f.IsDir()
}

// IsDir checks if a directory exists
func IsDir(filename string) bool {
	f, err := os.Stat(filename)
	return err == nil && f.IsDir()
}
