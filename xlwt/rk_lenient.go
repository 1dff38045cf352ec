//go:build !xlwtdebug

package xlwt

const rkStrict = false
