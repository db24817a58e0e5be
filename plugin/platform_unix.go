//go:build unix

package plugin

import "golang.org/x/sys/unix"

// platformVersion returns "<sysname> <release>", e.g. "Linux 6.8.0".
func platformVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "Unknown"
	}
	return unix.ByteSliceToString(uts.Sysname[:]) + " " + unix.ByteSliceToString(uts.Release[:])
}
