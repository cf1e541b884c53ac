//go:build !unix

package receiver

import "syscall"

// SO_REUSEADDR is only set on unix platforms.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
