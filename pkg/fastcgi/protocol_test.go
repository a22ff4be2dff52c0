package fastcgi

import (
	"bytes"
	"testing"
)

func TestHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name          string
		recType       RecordType
		reqID         uint16
		contentLength uint16
	}{
		{"BeginRequest", TypeBeginRequest, 1, 8},
		{"Params", TypeParams, 1, 100},
		{"Stdin", TypeStdin, 1, 0},
		{"Stdout", TypeStdout, 1, 256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Header{Version: Version1, Type: tt.recType, RequestID: tt.reqID, ContentLength: tt.contentLength}
			decoded := DecodeHeader(h.Encode())

			if decoded.Version != Version1 {
				t.Errorf("Version = %d, want %d", decoded.Version, Version1)
			}
			if decoded.Type != tt.recType {
				t.Errorf("Type = %d, want %d", decoded.Type, tt.recType)
			}
			if decoded.RequestID != tt.reqID {
				t.Errorf("RequestID = %d, want %d", decoded.RequestID, tt.reqID)
			}
			if decoded.ContentLength != tt.contentLength {
				t.Errorf("ContentLength = %d, want %d", decoded.ContentLength, tt.contentLength)
			}
		})
	}
}

func TestEncodeSimpleRecord(t *testing.T) {
	rec := NewStdout(5, []byte("data"))
	want := []byte("\x01\x06\x00\x05\x00\x04\x00\x00data")
	if got := rec.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeAbortRequest(t *testing.T) {
	rec := &AbortRequest{ID: 5}
	want := []byte("\x01\x02\x00\x05\x00\x00\x00\x00")
	if got := rec.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeBeginRequestRoundtrip(t *testing.T) {
	rec := &BeginRequest{ID: 5, Role: RoleResponder, Flags: FlagKeepConn}
	want := []byte("\x01\x01\x00\x05\x00\x08\x00\x00\x00\x01\x01\x00\x00\x00\x00\x00")
	if got := rec.Encode(); !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}

	decoded, consumed, err := decodeRecord(rec.Encode())
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if consumed != len(want) {
		t.Errorf("consumed = %d, want %d", consumed, len(want))
	}
	br, ok := decoded.(*BeginRequest)
	if !ok {
		t.Fatalf("decoded type = %T, want *BeginRequest", decoded)
	}
	if br.Role != RoleResponder || br.Flags != FlagKeepConn {
		t.Errorf("decoded = %+v, want Role=%d Flags=%d", br, RoleResponder, FlagKeepConn)
	}
}

func TestEncodeEndRequest(t *testing.T) {
	rec := &EndRequest{ID: 5, AppStatus: 65537, ProtocolStatus: 2}
	want := []byte("\x01\x03\x00\x05\x00\x08\x00\x00\x00\x01\x00\x01\x02\x00\x00\x00")
	if got := rec.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeUnknownType(t *testing.T) {
	rec := &UnknownType{RecType: 12}
	want := []byte("\x01\x0b\x00\x00\x00\x08\x00\x00\x0c\x00\x00\x00\x00\x00\x00\x00")
	if got := rec.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestDecodeRecordIncomplete(t *testing.T) {
	rec, consumed, err := decodeRecord([]byte{1, 6, 0, 1})
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if rec != nil || consumed != 0 {
		t.Errorf("decodeRecord() = (%v, %d), want (nil, 0)", rec, consumed)
	}
}

func TestDecodeRecordBadVersion(t *testing.T) {
	_, _, err := decodeRecord([]byte{2, 1, 0, 1, 0, 0, 0, 0})
	if err == nil {
		t.Fatal("expected ProtocolError for bad version")
	}
	wantSuffix := "unexpected protocol version: 2"
	if got := err.Error(); got[len(got)-len(wantSuffix):] != wantSuffix {
		t.Errorf("error = %q, want suffix %q", got, wantSuffix)
	}
}

func TestDecodeRecordUnknownManagementType(t *testing.T) {
	rec, consumed, err := decodeRecord([]byte{1, 12, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if consumed != HeaderSize {
		t.Errorf("consumed = %d, want %d", consumed, HeaderSize)
	}
	um, ok := rec.(unknownManagementRecord)
	if !ok || um.recType != 12 {
		t.Errorf("rec = %#v, want unknownManagementRecord{recType: 12}", rec)
	}
}

func TestDecodeRecordUnknownTypeNonZeroRequestID(t *testing.T) {
	_, _, err := decodeRecord([]byte{1, 12, 0, 1, 0, 0, 0, 0})
	if err == nil {
		t.Fatal("expected ProtocolError for unknown per-request record type")
	}
	if got, want := err.Error(), "FastCGI protocol violation: unknown record type: 12"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestDecodeRecordSplitAcrossFeeds(t *testing.T) {
	rec := NewStdout(1, []byte("hello world"))
	encoded := rec.Encode()

	for split := 1; split < len(encoded); split++ {
		first, consumed, err := decodeRecord(encoded[:split])
		if err != nil {
			t.Fatalf("split=%d: decodeRecord: %v", split, err)
		}
		if first != nil {
			t.Fatalf("split=%d: expected incomplete, got a record with consumed=%d", split, consumed)
		}
	}

	full, consumed, err := decodeRecord(encoded)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed = %d, want %d", consumed, len(encoded))
	}
	if full == nil {
		t.Fatal("expected a complete record once all bytes are present")
	}
}

func TestDecodeRecordRoundtripsEveryType(t *testing.T) {
	records := []Record{
		&BeginRequest{ID: 1, Role: RoleResponder, Flags: FlagKeepConn},
		&AbortRequest{ID: 1},
		&EndRequest{ID: 1, AppStatus: 7, ProtocolStatus: StatusOverloaded},
		newParams(1, EncodeNameValuePairs([]Pair{{Name: "A", Value: "b"}})),
		newStdin(1, []byte("body")),
		newData(1, []byte("side channel")),
		NewStdout(1, []byte("response")),
		NewStderr(1, []byte("diagnostic")),
		&GetValues{Keys: []string{"FCGI_MAX_CONNS"}},
		&GetValuesResult{Values: []Pair{{Name: "FCGI_MAX_CONNS", Value: "1"}}},
		&UnknownType{RecType: 99},
	}

	for _, want := range records {
		t.Run(want.Type().String(), func(t *testing.T) {
			encoded := want.Encode()
			got, consumed, err := decodeRecord(encoded)
			if err != nil {
				t.Fatalf("decodeRecord: %v", err)
			}
			if consumed != len(encoded) {
				t.Fatalf("consumed = %d, want %d", consumed, len(encoded))
			}
			if !bytes.Equal(got.Encode(), encoded) {
				t.Errorf("decoded.Encode() = %q, want %q", got.Encode(), encoded)
			}
		})
	}
}
