//go:build !tinygo

package core

var systemMicros uint64

func getSystemMicros() uint64 {
	return systemMicros
}

func setSystemMicros(us uint64) {
	systemMicros = us
}
