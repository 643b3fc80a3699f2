package someip

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the size of the SOME/IP header in bytes.
const HeaderSize = 16

// lengthCovered is the part of the header counted by the length field
// (request ID, protocol version, interface version, message type, return code).
const lengthCovered = 8

// ProtocolVersion is the SOME/IP protocol version written into new headers.
const ProtocolVersion uint8 = 0x01

// Header errors.
var (
	ErrShortHeader    = errors.New("packet shorter than SOME/IP header")
	ErrLengthMismatch = errors.New("length field does not match packet size")
)

// MessageType is the SOME/IP message type field.
type MessageType uint8

const (
	// MessageTypeRequest expects a response.
	MessageTypeRequest MessageType = 0x00

	// MessageTypeRequestNoReturn is a fire-and-forget request.
	MessageTypeRequestNoReturn MessageType = 0x01

	// MessageTypeNotification is an event or field notification.
	MessageTypeNotification MessageType = 0x02

	// MessageTypeResponse answers a request.
	MessageTypeResponse MessageType = 0x80

	// MessageTypeError answers a request with an error.
	MessageTypeError MessageType = 0x81
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeRequestNoReturn:
		return "REQUEST_NO_RETURN"
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ReturnCode is the SOME/IP return code field.
type ReturnCode uint8

const (
	ReturnCodeOK                    ReturnCode = 0x00
	ReturnCodeNotOK                 ReturnCode = 0x01
	ReturnCodeUnknownService        ReturnCode = 0x02
	ReturnCodeUnknownMethod         ReturnCode = 0x03
	ReturnCodeNotReady              ReturnCode = 0x04
	ReturnCodeNotReachable          ReturnCode = 0x05
	ReturnCodeTimeout               ReturnCode = 0x06
	ReturnCodeWrongProtocolVersion  ReturnCode = 0x07
	ReturnCodeWrongInterfaceVersion ReturnCode = 0x08
	ReturnCodeMalformedMessage      ReturnCode = 0x09
	ReturnCodeWrongMessageType      ReturnCode = 0x0a
)

// String returns the return code name.
func (c ReturnCode) String() string {
	switch c {
	case ReturnCodeOK:
		return "E_OK"
	case ReturnCodeNotOK:
		return "E_NOT_OK"
	case ReturnCodeUnknownService:
		return "E_UNKNOWN_SERVICE"
	case ReturnCodeUnknownMethod:
		return "E_UNKNOWN_METHOD"
	case ReturnCodeNotReady:
		return "E_NOT_READY"
	case ReturnCodeNotReachable:
		return "E_NOT_REACHABLE"
	case ReturnCodeTimeout:
		return "E_TIMEOUT"
	case ReturnCodeWrongProtocolVersion:
		return "E_WRONG_PROTOCOL_VERSION"
	case ReturnCodeWrongInterfaceVersion:
		return "E_WRONG_INTERFACE_VERSION"
	case ReturnCodeMalformedMessage:
		return "E_MALFORMED_MESSAGE"
	case ReturnCodeWrongMessageType:
		return "E_WRONG_MESSAGE_TYPE"
	default:
		return fmt.Sprintf("E_0x%02x", uint8(c))
	}
}

// Header is the fixed 16-byte SOME/IP message header.
//
// Wire layout (big endian):
//
//	0..1   service ID
//	2..3   method / event ID
//	4..7   length (bytes following this field)
//	8..9   client ID
//	10..11 session ID
//	12     protocol version
//	13     interface version
//	14     message type
//	15     return code
type Header struct {
	Service          ServiceID
	Method           MethodID
	Length           uint32
	Client           ClientID
	Session          SessionID
	ProtocolVersion  uint8
	InterfaceVersion uint8
	MessageType      MessageType
	ReturnCode       ReturnCode
}

// ParseHeader decodes the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		Service:          ServiceID(binary.BigEndian.Uint16(data[0:2])),
		Method:           MethodID(binary.BigEndian.Uint16(data[2:4])),
		Length:           binary.BigEndian.Uint32(data[4:8]),
		Client:           ClientID(binary.BigEndian.Uint16(data[8:10])),
		Session:          SessionID(binary.BigEndian.Uint16(data[10:12])),
		ProtocolVersion:  data[12],
		InterfaceVersion: data[13],
		MessageType:      MessageType(data[14]),
		ReturnCode:       ReturnCode(data[15]),
	}, nil
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(h.Service))
	b = binary.BigEndian.AppendUint16(b, uint16(h.Method))
	b = binary.BigEndian.AppendUint32(b, h.Length)
	b = binary.BigEndian.AppendUint16(b, uint16(h.Client))
	b = binary.BigEndian.AppendUint16(b, uint16(h.Session))
	return append(b, h.ProtocolVersion, h.InterfaceVersion, uint8(h.MessageType), uint8(h.ReturnCode))
}

// IsEvent reports whether the method ID is in the event range (high bit set).
func (h Header) IsEvent() bool {
	return h.Method&0x8000 != 0
}

// Packet is a SOME/IP message: header plus opaque payload.
// Packets are immutable once handed to the router and may be shared
// between sinks.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewPacket builds a packet and fills in the length and protocol version.
func NewPacket(h Header, payload []byte) *Packet {
	h.Length = uint32(lengthCovered + len(payload))
	if h.ProtocolVersion == 0 {
		h.ProtocolVersion = ProtocolVersion
	}
	return &Packet{Header: h, Payload: payload}
}

// ParsePacket decodes a full SOME/IP message and checks the length field.
func ParsePacket(data []byte) (*Packet, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if int(h.Length) != len(data)-HeaderSize+lengthCovered {
		return nil, fmt.Errorf("%w: length=%d size=%d", ErrLengthMismatch, h.Length, len(data))
	}
	payload := make([]byte, len(data)-HeaderSize)
	copy(payload, data[HeaderSize:])
	return &Packet{Header: h, Payload: payload}, nil
}

// Bytes encodes the packet to wire format.
func (p *Packet) Bytes() []byte {
	b := make([]byte, 0, HeaderSize+len(p.Payload))
	b = p.Header.AppendBinary(b)
	return append(b, p.Payload...)
}

// Size returns the encoded size in bytes.
func (p *Packet) Size() int {
	return HeaderSize + len(p.Payload)
}

// ServiceInstance returns the key of the packet's service for the given instance.
func (p *Packet) ServiceInstance(instance InstanceID) ServiceInstanceKey {
	return ServiceInstanceKey{Service: p.Header.Service, Instance: instance}
}
