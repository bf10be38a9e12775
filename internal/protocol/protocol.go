package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PacketType is the Socket.IO packet type, the first field of every packet.
type PacketType int

const (
	Disconnect PacketType = iota
	Connect
	Heartbeat
	Message
	JSON
	Event
	Ack
	Error
	Noop

	// Invalid marks a packet whose type field is not an integer.
	Invalid PacketType = -1
)

var (
	ErrNotSocketIO    = errors.New("not a socket.io message")
	ErrJSONDecode     = errors.New("json decode error")
	ErrMalformedEvent = errors.New("malformed event")
)

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type     PacketType
	ID       uint64
	Endpoint string
	// Data is the raw payload, always set.
	Data string

	// JSON is the parsed payload of JSON and Event packets.
	JSON json.RawMessage
	// Name and Args are set for Event packets.
	Name string
	Args []json.RawMessage
	// Reason and Advice are set for Error packets.
	Reason string
	Advice string
}

// Valid reports whether the packet type is one of the known packet types.
func (t PacketType) Valid() bool {
	return t >= Disconnect && t <= Noop
}

func (t PacketType) String() string {
	switch t {
	case Disconnect:
		return "disconnect"
	case Connect:
		return "connect"
	case Heartbeat:
		return "heartbeat"
	case Message:
		return "message"
	case JSON:
		return "json"
	case Event:
		return "event"
	case Ack:
		return "ack"
	case Error:
		return "error"
	case Noop:
		return "noop"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Encode frames a packet as "type:id:endpoint:data". An id of 0 is rendered as
// an empty field.
func Encode(t PacketType, id uint64, endpoint, data string) string {
	var b strings.Builder
	b.Grow(len(endpoint) + len(data) + 24)

	b.WriteString(strconv.Itoa(int(t)))
	b.WriteByte(':')
	if id > 0 {
		b.WriteString(strconv.FormatUint(id, 10))
	}
	b.WriteByte(':')
	b.WriteString(endpoint)
	b.WriteByte(':')
	b.WriteString(data)
	return b.String()
}

// Encode frames the packet using its raw Data.
func (p *Packet) Encode() string {
	return Encode(p.Type, p.ID, p.Endpoint, p.Data)
}

// Decode parses raw packet text. Only the first three ':' are delimiters, so
// the payload may contain ':' itself.
//
// A packet with an unparseable type is returned with Type Invalid and no error.
// JSON and Event payloads are parsed; failures wrap ErrJSONDecode or
// ErrMalformedEvent.
func Decode(raw string) (*Packet, error) {
	fields := strings.SplitN(raw, ":", 4)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrNotSocketIO, raw)
	}
	for len(fields) < 4 {
		fields = append(fields, "")
	}

	p := &Packet{
		Type:     Invalid,
		Endpoint: fields[2],
		Data:     fields[3],
	}

	if t, err := strconv.Atoi(fields[0]); err == nil {
		p.Type = PacketType(t)
	}
	p.ID, _ = ParseID(fields[1])

	switch p.Type {
	case JSON:
		if !json.Valid([]byte(p.Data)) {
			return nil, fmt.Errorf("%w: json packet payload %q", ErrJSONDecode, p.Data)
		}
		p.JSON = json.RawMessage(p.Data)
	case Event:
		if err := decodeEvent(p); err != nil {
			return nil, err
		}
	case Error:
		p.Reason, p.Advice, _ = strings.Cut(p.Data, "+")
	}

	return p, nil
}

type eventPayload struct {
	Name *string           `json:"name"`
	Args []json.RawMessage `json:"args"`
}

func decodeEvent(p *Packet) error {
	if !json.Valid([]byte(p.Data)) {
		return fmt.Errorf("%w: event payload %q", ErrJSONDecode, p.Data)
	}

	var ev eventPayload
	if err := json.Unmarshal([]byte(p.Data), &ev); err != nil || ev.Name == nil {
		return fmt.Errorf("%w: missing string field \"name\"", ErrMalformedEvent)
	}

	p.JSON = json.RawMessage(p.Data)
	p.Name = *ev.Name
	p.Args = ev.Args
	return nil
}

// ParseID parses the leading decimal digits of s, so "12+" yields 12. It
// returns false when s does not start with a digit or overflows.
func ParseID(s string) (uint64, bool) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// EncodeEvent builds the JSON payload of an event packet.
func EncodeEvent(name string, args ...any) (string, error) {
	payload := struct {
		Name string `json:"name"`
		Args []any  `json:"args,omitempty"`
	}{
		Name: name,
		Args: args,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event %q: %w", name, err)
	}
	return string(data), nil
}
