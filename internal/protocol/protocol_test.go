package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// TestEncode tests the Encode function with various inputs
func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		packetType PacketType
		id         uint64
		endpoint   string
		data       string
		want       string
	}{
		{
			name:       "message without ack",
			packetType: Message,
			data:       "hi",
			want:       "3:::hi",
		},
		{
			name:       "message with ack id",
			packetType: Message,
			id:         7,
			data:       "hello",
			want:       "3:7::hello",
		},
		{
			name:       "event on endpoint",
			packetType: Event,
			endpoint:   "/chat",
			data:       `{"name":"foo"}`,
			want:       `5::/chat:{"name":"foo"}`,
		},
		{
			name:       "heartbeat",
			packetType: Heartbeat,
			want:       "2:::",
		},
		{
			name:       "disconnect",
			packetType: Disconnect,
			want:       "0:::",
		},
		{
			name:       "ack reply",
			packetType: Ack,
			id:         12,
			data:       "done",
			want:       "6:12::done",
		},
		{
			name:       "payload containing colons",
			packetType: Message,
			data:       "a:b:c",
			want:       "3:::a:b:c",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Encode(tt.packetType, tt.id, tt.endpoint, tt.data)
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestDecode tests decoding of well formed packets
func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		raw          string
		wantType     PacketType
		wantID       uint64
		wantEndpoint string
		wantData     string
	}{
		{
			name:     "message with id",
			raw:      "3:1::hello",
			wantType: Message,
			wantID:   1,
			wantData: "hello",
		},
		{
			name:     "heartbeat short form",
			raw:      "2::",
			wantType: Heartbeat,
		},
		{
			name:         "connect ack for endpoint",
			raw:          "1::/chat",
			wantType:     Connect,
			wantEndpoint: "/chat",
		},
		{
			name:     "payload keeps extra colons",
			raw:      "3:::a:b:c",
			wantType: Message,
			wantData: "a:b:c",
		},
		{
			name:     "non numeric id defaults to zero",
			raw:      "3:x::data",
			wantType: Message,
			wantData: "data",
		},
		{
			name:     "id with data flag",
			raw:      "3:5+::data",
			wantType: Message,
			wantID:   5,
			wantData: "data",
		},
		{
			name:     "ack payload",
			raw:      "6:::4",
			wantType: Ack,
			wantData: "4",
		},
		{
			name:     "two fields only",
			raw:      "8:",
			wantType: Noop,
		},
		{
			name:     "unknown numeric type",
			raw:      "42:::x",
			wantType: PacketType(42),
			wantData: "x",
		},
		{
			name:     "non numeric type",
			raw:      "z:::x",
			wantType: Invalid,
			wantData: "x",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.raw, err)
			}

			if p.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", p.Type, tt.wantType)
			}
			if p.ID != tt.wantID {
				t.Errorf("ID = %d, want %d", p.ID, tt.wantID)
			}
			if p.Endpoint != tt.wantEndpoint {
				t.Errorf("Endpoint = %q, want %q", p.Endpoint, tt.wantEndpoint)
			}
			if p.Data != tt.wantData {
				t.Errorf("Data = %q, want %q", p.Data, tt.wantData)
			}
		})
	}
}

// TestDecodeErrors tests that malformed packets report the right error
func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty string", "", ErrNotSocketIO},
		{"no delimiter", "hello", ErrNotSocketIO},
		{"single digit", "3", ErrNotSocketIO},
		{"json message not json", "4:::{oops", ErrJSONDecode},
		{"event not json", "5:::not json", ErrJSONDecode},
		{"event without name", `5:::{"args":[1]}`, ErrMalformedEvent},
		{"event with numeric name", `5:::{"name":3}`, ErrMalformedEvent},
		{"event with null name", `5:::{"name":null}`, ErrMalformedEvent},
		{"event payload is array", `5:::[1,2]`, ErrMalformedEvent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Decode(tt.raw)
			if err == nil {
				t.Fatalf("Decode(%q) = %+v, want error", tt.raw, p)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

// TestDecodeEvent tests event payload extraction
func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	p, err := Decode(`5::test:{"name":"foo","args":[1]}`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if p.Type != Event {
		t.Errorf("Type = %v, want %v", p.Type, Event)
	}
	if p.Endpoint != "test" {
		t.Errorf("Endpoint = %q, want %q", p.Endpoint, "test")
	}
	if p.Name != "foo" {
		t.Errorf("Name = %q, want %q", p.Name, "foo")
	}
	if len(p.Args) != 1 || string(p.Args[0]) != "1" {
		t.Errorf("Args = %s, want [1]", p.Args)
	}
}

// TestDecodeEventPayloadWithColons tests that JSON containing ':' survives the split
func TestDecodeEventPayloadWithColons(t *testing.T) {
	t.Parallel()

	p, err := Decode(`5:3+::{"name":"url","args":["http://example.com:80/"]}`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if p.ID != 3 {
		t.Errorf("ID = %d, want 3", p.ID)
	}

	var arg string
	if err := json.Unmarshal(p.Args[0], &arg); err != nil {
		t.Fatalf("unmarshal arg: %v", err)
	}
	if arg != "http://example.com:80/" {
		t.Errorf("arg = %q", arg)
	}
}

// TestDecodeJSON tests that JSON message payloads are exposed
func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	p, err := Decode(`4:1::{"a":1}`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	var v map[string]int
	if err := json.Unmarshal(p.JSON, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v["a"] != 1 {
		t.Errorf("a = %d, want 1", v["a"])
	}
}

// TestDecodeError tests the reason/advice split of error packets
func TestDecodeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantReason string
		wantAdvice string
	}{
		{"reason and advice", "7:::unauthorized+reconnect", "unauthorized", "reconnect"},
		{"reason only", "7:::unauthorized", "unauthorized", ""},
		{"first plus splits", "7:::a+b+c", "a", "b+c"},
		{"empty payload", "7::/chat:", "", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if p.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", p.Reason, tt.wantReason)
			}
			if p.Advice != tt.wantAdvice {
				t.Errorf("Advice = %q, want %q", p.Advice, tt.wantAdvice)
			}
		})
	}
}

// TestEncodeDecodeRoundTrip tests that Decode reverses Encode
func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		packetType PacketType
		id         uint64
		endpoint   string
		data       string
	}{
		{Disconnect, 0, "", ""},
		{Connect, 0, "/chat", ""},
		{Heartbeat, 0, "", ""},
		{Message, 0, "", "hi"},
		{Message, 99, "/news", "with:colons:inside"},
		{JSON, 3, "", `{"a":[1,2,3]}`},
		{Event, 0, "/chat", `{"name":"msg","args":["x"]}`},
		{Ack, 4, "", "ok"},
		{Error, 0, "", "reason+advice"},
		{Noop, 0, "", ""},
	}

	for _, tt := range tests {
		tt := tt
		encoded := Encode(tt.packetType, tt.id, tt.endpoint, tt.data)
		p, err := Decode(encoded)
		if err != nil {
			t.Errorf("Decode(%q) error = %v", encoded, err)
			continue
		}

		if p.Type != tt.packetType || p.ID != tt.id || p.Endpoint != tt.endpoint || p.Data != tt.data {
			t.Errorf("round trip of %q = {%v %d %q %q}", encoded, p.Type, p.ID, p.Endpoint, p.Data)
		}
		if p.Encode() != encoded {
			t.Errorf("re-encode = %q, want %q", p.Encode(), encoded)
		}
	}
}

// TestEncodeEvent tests the event payload builder
func TestEncodeEvent(t *testing.T) {
	t.Parallel()

	t.Run("with args", func(t *testing.T) {
		got, err := EncodeEvent("greet", "bob", 2)
		if err != nil {
			t.Fatalf("EncodeEvent() error = %v", err)
		}
		if got != `{"name":"greet","args":["bob",2]}` {
			t.Errorf("EncodeEvent() = %s", got)
		}
	})

	t.Run("without args", func(t *testing.T) {
		got, err := EncodeEvent("ping")
		if err != nil {
			t.Fatalf("EncodeEvent() error = %v", err)
		}
		if got != `{"name":"ping"}` {
			t.Errorf("EncodeEvent() = %s", got)
		}
	})

	t.Run("unmarshalable arg", func(t *testing.T) {
		_, err := EncodeEvent("bad", make(chan int))
		if err == nil {
			t.Error("EncodeEvent() expected error for channel arg")
		}
	})
}

// TestParseID tests leading digit id parsing
func TestParseID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   uint64
		wantOK bool
	}{
		{"12", 12, true},
		{"12+", 12, true},
		{"4+[\"x\"]", 4, true},
		{"", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{strings.Repeat("9", 30), 0, false},
	}

	for _, tt := range tests {
		tt := tt
		got, ok := ParseID(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseID(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

// TestPacketTypeString tests packet type names
func TestPacketTypeString(t *testing.T) {
	t.Parallel()

	if Event.String() != "event" {
		t.Errorf("Event.String() = %q", Event.String())
	}
	if PacketType(12).String() != "unknown(12)" {
		t.Errorf("PacketType(12).String() = %q", PacketType(12).String())
	}
	if Invalid.Valid() || PacketType(9).Valid() || !Noop.Valid() {
		t.Error("Valid() reported wrong result")
	}
}

// BenchmarkDecode benchmarks event decoding
func BenchmarkDecode(b *testing.B) {
	raw := `5:1+:/chat:{"name":"message","args":[{"text":"hello world"}]}`

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(raw)
	}
}
