//go:build !unix

package plugin

import "runtime"

func platformVersion() string {
	return runtime.GOOS
}
