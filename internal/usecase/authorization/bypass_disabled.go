//go:build !devbypass

package authorization

// BypassCompiled reports whether the pin check bypass is built into this binary.
const BypassCompiled = false
