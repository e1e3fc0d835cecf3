package protocol

// Version is the 3-byte ASCII wire format tag carried at the start of every
// frame. It selects both the framing details and the payload cipher.
type Version string

const (
	// Version10 is the original local protocol spoken by older firmware.
	Version10 Version = "1.0"
	// VersionA01 and VersionB01 share a CBC payload cipher.
	VersionA01 Version = "A01"
	VersionB01 Version = "B01"
	// VersionL01 is the current firmware generation.
	VersionL01 Version = "L01"
)

// versionTagSize is the length of the on-wire version tag.
const versionTagSize = 3

// Known protocol IDs. Only RPC request/response frames carry JSON payloads
// the proxy inspects; everything else is relayed as-is.
const (
	ProtocolHelloRequest    uint16 = 0
	ProtocolHelloResponse   uint16 = 1
	ProtocolPingRequest     uint16 = 2
	ProtocolPingResponse    uint16 = 3
	ProtocolGeneralRequest  uint16 = 4
	ProtocolGeneralResponse uint16 = 5
	ProtocolRPCRequest      uint16 = 101
	ProtocolRPCResponse     uint16 = 102
	ProtocolMapResponse     uint16 = 301
)

// Message is one decoded unit of the local protocol. Seq and Random are
// opaque pass-through fields: the codec never invents values for them, they
// are only synthesized when the proxy forges a reply of its own.
type Message struct {
	Version   Version
	Seq       uint32
	Random    uint32
	Timestamp uint32
	Protocol  uint16
	Payload   []byte
}
