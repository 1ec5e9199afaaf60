//go:build unix

package config

import "golang.org/x/sys/unix"

// checkReadable fails unless the process may list and read dir
func checkReadable(dir string) error {
	return unix.Access(dir, unix.R_OK|unix.X_OK)
}
