package types

// Version is the canonical project version.
// The CLI, the frame contract, and the run report share this version.
const Version = "0.3.0"

// FrameContractVersion is the version of the input frame contract consumed
// from the execution engine. It moves in lockstep with Version.
const FrameContractVersion = Version

// ProtocolVersion is the message protocol version written to Meta envelopes
// produced by msgfmt itself.
const ProtocolVersion = "27.0.0"
