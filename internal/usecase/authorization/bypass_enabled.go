//go:build devbypass

package authorization

// BypassCompiled reports whether the pin check bypass is built into this binary.
// Only automation and local builds pass -tags devbypass.
const BypassCompiled = true
