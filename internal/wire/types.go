// Package wire implements the match server's framed binary protocol: a
// 6-byte header (type, length, checksum, sentinel) followed by exactly
// payload_length opaque bytes.
package wire

// HeaderType is the single byte identifying a packet's kind on the wire.
type HeaderType byte

const (
	Disconnect   HeaderType = 0x00
	Connect      HeaderType = 0x01
	Ping         HeaderType = 0x02
	Reconnect    HeaderType = 0x03
	GameState    HeaderType = 0x10
	PlayCard     HeaderType = 0x11
	AttackPlayer HeaderType = 0x12
	InitServer   HeaderType = 0x13

	FailedToConnectPlayer HeaderType = 0xF0
	InvalidPacketPayload  HeaderType = 0xF1
	InvalidHeader         HeaderType = 0xFA
	AlreadyConnected      HeaderType = 0xFB
	InvalidPlayerData     HeaderType = 0xFC
	InvalidChecksum       HeaderType = 0xFD
	Error                 HeaderType = 0xFE
)

// Sentinel is the literal byte that must follow the checksum field.
const Sentinel byte = 0x0A

// HeaderSize is the fixed length of the framing header in bytes.
const HeaderSize = 6

// knownTypes lists every header byte the parser accepts. Anything else is
// rejected as InvalidHeader.
var knownTypes = map[HeaderType]bool{
	Disconnect: true, Connect: true, Ping: true, Reconnect: true,
	GameState: true, PlayCard: true, AttackPlayer: true, InitServer: true,
	FailedToConnectPlayer: true, InvalidPacketPayload: true, InvalidHeader: true,
	AlreadyConnected: true, InvalidPlayerData: true, InvalidChecksum: true, Error: true,
}

// Valid reports whether t is a recognized header type byte.
func (t HeaderType) Valid() bool {
	return knownTypes[t]
}

func (t HeaderType) String() string {
	switch t {
	case Disconnect:
		return "Disconnect"
	case Connect:
		return "Connect"
	case Ping:
		return "Ping"
	case Reconnect:
		return "Reconnect"
	case GameState:
		return "GameState"
	case PlayCard:
		return "PlayCard"
	case AttackPlayer:
		return "AttackPlayer"
	case InitServer:
		return "InitServer"
	case FailedToConnectPlayer:
		return "FailedToConnectPlayer"
	case InvalidPacketPayload:
		return "InvalidPacketPayload"
	case InvalidHeader:
		return "InvalidHeader"
	case AlreadyConnected:
		return "AlreadyConnected"
	case InvalidPlayerData:
		return "InvalidPlayerData"
	case InvalidChecksum:
		return "InvalidChecksum"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}
