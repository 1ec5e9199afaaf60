//go:build !unix

package config

import "os"

func checkReadable(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	return f.Close()
}
