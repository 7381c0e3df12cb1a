//go:build fractus_debug

package buffer

// debugAlign turns on the scalar alignment assertion.
const debugAlign = true
