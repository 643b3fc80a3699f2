package someip

import (
	"errors"
	"slices"
	"testing"
)

func TestKeyOrdering(t *testing.T) {
	keys := []EventgroupKey{
		NewEventgroupKey(2, 1, 1),
		NewEventgroupKey(1, 2, 1),
		NewEventgroupKey(1, 1, 7),
		NewEventgroupKey(1, 1, 3),
	}

	slices.SortFunc(keys, EventgroupKey.Compare)

	want := []EventgroupKey{
		NewEventgroupKey(1, 1, 3),
		NewEventgroupKey(1, 1, 7),
		NewEventgroupKey(1, 2, 1),
		NewEventgroupKey(2, 1, 1),
	}
	if !slices.Equal(keys, want) {
		t.Errorf("sorted = %v, want %v", keys, want)
	}

	if !NewEventKey(1, 1, 0x8001).Less(NewEventKey(1, 1, 0x8002)) {
		t.Error("event key with lower event ID should sort first")
	}
}

func TestServiceInstanceKeyMatches(t *testing.T) {
	wild := ServiceInstanceKey{Service: 0x1234, Instance: InstanceAny}
	concrete := ServiceInstanceKey{Service: 0x1234, Instance: 1}

	if !wild.IsWildcard() {
		t.Error("IsWildcard() = false for InstanceAny")
	}
	if !wild.Matches(concrete) {
		t.Error("wildcard should match any instance of the same service")
	}
	if concrete.Matches(ServiceInstanceKey{Service: 0x1234, Instance: 2}) {
		t.Error("concrete key should not match another instance")
	}
	if wild.Matches(ServiceInstanceKey{Service: 0x4321, Instance: 1}) {
		t.Error("wildcard should not match another service")
	}
}

func TestPacketEncodeParse(t *testing.T) {
	p := NewPacket(Header{
		Service:     0x1234,
		Method:      0x0001,
		Client:      3,
		Session:     4,
		MessageType: MessageTypeRequest,
	}, []byte{0xde, 0xad})

	if p.Header.Length != 10 {
		t.Errorf("Length = %d, want 10", p.Header.Length)
	}

	data := p.Bytes()
	if len(data) != p.Size() {
		t.Fatalf("len(Bytes()) = %d, want %d", len(data), p.Size())
	}

	got, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}
	if got.Header != p.Header {
		t.Errorf("header = %+v, want %+v", got.Header, p.Header)
	}
	if string(got.Payload) != string(p.Payload) {
		t.Errorf("payload = %x, want %x", got.Payload, p.Payload)
	}
}

func TestParsePacketErrors(t *testing.T) {
	if _, err := ParsePacket(make([]byte, HeaderSize-1)); !errors.Is(err, ErrShortHeader) {
		t.Errorf("short packet error = %v, want ErrShortHeader", err)
	}

	data := NewPacket(Header{Service: 1}, []byte{1, 2, 3}).Bytes()
	if _, err := ParsePacket(data[:len(data)-1]); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("truncated packet error = %v, want ErrLengthMismatch", err)
	}
}

func TestHeaderIsEvent(t *testing.T) {
	if (Header{Method: 0x0001}).IsEvent() {
		t.Error("method 0x0001 reported as event")
	}
	if !(Header{Method: 0x8001}).IsEvent() {
		t.Error("method 0x8001 not reported as event")
	}
}

func TestMessageTypeString(t *testing.T) {
	tests := []struct {
		t    MessageType
		want string
	}{
		{MessageTypeRequest, "REQUEST"},
		{MessageTypeRequestNoReturn, "REQUEST_NO_RETURN"},
		{MessageTypeNotification, "NOTIFICATION"},
		{MessageTypeResponse, "RESPONSE"},
		{MessageTypeError, "ERROR"},
		{MessageType(0x42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("MessageType(0x%02x).String() = %q, want %q", uint8(tt.t), got, tt.want)
		}
	}
}
