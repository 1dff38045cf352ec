//go:build xlwtdebug

package xlwt

// rkStrict makes an RK value that fails its round-trip check panic.
const rkStrict = true
