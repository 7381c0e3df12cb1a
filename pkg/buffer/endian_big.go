//go:build !(386 || amd64 || amd64p32 || alpha || arm || arm64 || loong64 || mips64le || mips64p32le || mipsle || nios2 || ppc64le || riscv || riscv64 || sh || wasm)

package buffer

// NativeLittleEndian reports whether host memory already matches the wire
// byte order, which allows scalar vectors to be copied as raw memory.
const NativeLittleEndian = false
