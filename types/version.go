package types

// Version is the canonical project version.
// The CLI, the worker, and the packet protocol share this version.
const Version = "0.3.0"

// ProtocolVersion is folded into the handshake fingerprint. Bump it whenever
// the packet layout changes so that stale reusable workers are never matched.
const ProtocolVersion = 2
