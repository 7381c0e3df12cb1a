//go:build !fractus_debug

package buffer

const debugAlign = false
