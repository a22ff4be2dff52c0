package fastcgi

import "encoding/binary"

// Record type identifiers, as laid out in the FastCGI/1.0 specification.
type RecordType uint8

const (
	TypeBeginRequest    RecordType = 1
	TypeAbortRequest    RecordType = 2
	TypeEndRequest      RecordType = 3
	TypeParams          RecordType = 4
	TypeStdin           RecordType = 5
	TypeStdout          RecordType = 6
	TypeStderr          RecordType = 7
	TypeData            RecordType = 8
	TypeGetValues       RecordType = 9
	TypeGetValuesResult RecordType = 10
	TypeUnknownType     RecordType = 11
)

var recordTypeNames = map[RecordType]string{
	TypeBeginRequest:    "BeginRequest",
	TypeAbortRequest:    "AbortRequest",
	TypeEndRequest:      "EndRequest",
	TypeParams:          "Params",
	TypeStdin:           "Stdin",
	TypeStdout:          "Stdout",
	TypeStderr:          "Stderr",
	TypeData:            "Data",
	TypeGetValues:       "GetValues",
	TypeGetValuesResult: "GetValuesResult",
	TypeUnknownType:     "UnknownType",
}

func (t RecordType) String() string {
	if name, ok := recordTypeNames[t]; ok {
		return name
	}
	return "UnknownRecordType"
}

// Role identifies the application contract a BeginRequest asks the engine
// to fulfil.
type Role uint16

const (
	RoleResponder  Role = 1
	RoleAuthorizer Role = 2
	RoleFilter     Role = 3
)

// Protocol status codes carried by EndRequest.
const (
	StatusRequestComplete uint8 = 0
	StatusCantMultiplex   uint8 = 1
	StatusOverloaded      uint8 = 2
	StatusUnknownRole     uint8 = 3
)

// FlagKeepConn is bit 0 of BeginRequest.Flags: the peer asks the server not
// to close the connection once the request finishes.
const FlagKeepConn uint8 = 1

// Version1 is the only protocol version this engine accepts.
const Version1 uint8 = 1

// HeaderSize is the fixed size, in bytes, of a FastCGI record header.
const HeaderSize = 8

// Header is the fixed 8-byte prefix of every FastCGI record.
type Header struct {
	Version       uint8
	Type          RecordType
	RequestID     uint16
	ContentLength uint16
	PaddingLength uint8
	Reserved      uint8
}

// Encode renders the header as its 8-byte wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = uint8(h.Type)
	binary.BigEndian.PutUint16(buf[2:4], h.RequestID)
	binary.BigEndian.PutUint16(buf[4:6], h.ContentLength)
	buf[6] = h.PaddingLength
	buf[7] = h.Reserved
	return buf
}

// DecodeHeader parses an 8-byte header. The caller guarantees len(buf) >= HeaderSize.
func DecodeHeader(buf []byte) Header {
	return Header{
		Version:       buf[0],
		Type:          RecordType(buf[1]),
		RequestID:     binary.BigEndian.Uint16(buf[2:4]),
		ContentLength: binary.BigEndian.Uint16(buf[4:6]),
		PaddingLength: buf[6],
		Reserved:      buf[7],
	}
}

func encodeHeader(typ RecordType, requestID uint16, contentLength int) []byte {
	h := Header{
		Version:       Version1,
		Type:          typ,
		RequestID:     requestID,
		ContentLength: uint16(contentLength),
		PaddingLength: 0,
	}
	return h.Encode()
}

// Record is the common contract every FastCGI record variant satisfies: it
// knows which request it belongs to (0 for management records), which wire
// type it is, and how to render itself back to bytes.
type Record interface {
	RequestID() uint16
	Type() RecordType
	Encode() []byte
}

// BeginRequest signals the start of a new request and the role the
// application is being asked to perform. Inbound only.
type BeginRequest struct {
	ID    uint16
	Role  Role
	Flags uint8
}

func (r *BeginRequest) RequestID() uint16 { return r.ID }
func (r *BeginRequest) Type() RecordType  { return TypeBeginRequest }

func (r *BeginRequest) Encode() []byte {
	content := make([]byte, 8)
	binary.BigEndian.PutUint16(content[0:2], uint16(r.Role))
	content[2] = r.Flags
	return append(encodeHeader(TypeBeginRequest, r.ID, len(content)), content...)
}

func decodeBeginRequest(requestID uint16, content []byte) (*BeginRequest, error) {
	if len(content) < 8 {
		return nil, newProtocolError("truncated BeginRequest body")
	}
	return &BeginRequest{
		ID:    requestID,
		Role:  Role(binary.BigEndian.Uint16(content[0:2])),
		Flags: content[2],
	}, nil
}

// AbortRequest asks the engine to stop processing a live request. Inbound only.
type AbortRequest struct {
	ID uint16
}

func (r *AbortRequest) RequestID() uint16 { return r.ID }
func (r *AbortRequest) Type() RecordType  { return TypeAbortRequest }
func (r *AbortRequest) Encode() []byte    { return encodeHeader(TypeAbortRequest, r.ID, 0) }

// EndRequest reports that a request has finished, successfully or otherwise.
// Outbound only.
type EndRequest struct {
	ID             uint16
	AppStatus      uint32
	ProtocolStatus uint8
}

func (r *EndRequest) RequestID() uint16 { return r.ID }
func (r *EndRequest) Type() RecordType  { return TypeEndRequest }

func (r *EndRequest) Encode() []byte {
	content := make([]byte, 8)
	binary.BigEndian.PutUint32(content[0:4], r.AppStatus)
	content[4] = r.ProtocolStatus
	return append(encodeHeader(TypeEndRequest, r.ID, len(content)), content...)
}

func decodeEndRequest(requestID uint16, content []byte) (*EndRequest, error) {
	if len(content) < 5 {
		return nil, newProtocolError("truncated EndRequest body")
	}
	return &EndRequest{
		ID:             requestID,
		AppStatus:      binary.BigEndian.Uint32(content[0:4]),
		ProtocolStatus: content[4],
	}, nil
}

// byteStream is the shared shape of Params, Stdin, Stdout, Stderr and Data:
// a per-request stream of raw bytes terminated by an empty record.
type byteStream struct {
	ID      uint16
	Content []byte
	typ     RecordType
}

func (r byteStream) RequestID() uint16 { return r.ID }
func (r byteStream) Type() RecordType  { return r.typ }

func (r byteStream) Encode() []byte {
	return append(encodeHeader(r.typ, r.ID, len(r.Content)), r.Content...)
}

// Params carries request metadata (the CGI environment); an empty payload
// signals end of stream. Inbound only.
type Params struct{ byteStream }

func newParams(requestID uint16, content []byte) *Params {
	return &Params{byteStream{ID: requestID, Content: content, typ: TypeParams}}
}

// Stdin carries the request body; an empty payload signals EOF. Inbound only.
type Stdin struct{ byteStream }

func newStdin(requestID uint16, content []byte) *Stdin {
	return &Stdin{byteStream{ID: requestID, Content: content, typ: TypeStdin}}
}

// Data carries the filter role's secondary input stream; an empty payload
// signals EOF. Inbound only.
type Data struct{ byteStream }

func newData(requestID uint16, content []byte) *Data {
	return &Data{byteStream{ID: requestID, Content: content, typ: TypeData}}
}

// Stdout carries response body bytes; an empty payload signals end of
// stream. Outbound only.
type Stdout struct{ byteStream }

// NewStdout builds an outbound Stdout record.
func NewStdout(requestID uint16, content []byte) *Stdout {
	return &Stdout{byteStream{ID: requestID, Content: content, typ: TypeStdout}}
}

// Stderr carries diagnostic output. Outbound only; the engine defines it for
// completeness but exposes no send method for it, matching the connection's
// public operation set.
type Stderr struct{ byteStream }

// NewStderr builds an outbound Stderr record.
func NewStderr(requestID uint16, content []byte) *Stderr {
	return &Stderr{byteStream{ID: requestID, Content: content, typ: TypeStderr}}
}

// GetValues asks the engine for a subset of its FastCGI management values.
// Inbound only, request_id == 0.
type GetValues struct {
	Keys []string
}

func (r *GetValues) RequestID() uint16 { return 0 }
func (r *GetValues) Type() RecordType  { return TypeGetValues }

func (r *GetValues) Encode() []byte {
	pairs := make([]Pair, len(r.Keys))
	for i, k := range r.Keys {
		pairs[i] = Pair{Name: k}
	}
	content := EncodeNameValuePairs(pairs)
	return append(encodeHeader(TypeGetValues, 0, len(content)), content...)
}

func decodeGetValues(content []byte) (*GetValues, error) {
	pairs, err := DecodeNameValuePairs(content)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Name
	}
	return &GetValues{Keys: keys}, nil
}

// GetValuesResult replies to GetValues with the subset of requested keys the
// engine actually knows about. Outbound only, request_id == 0.
type GetValuesResult struct {
	Values []Pair
}

func (r *GetValuesResult) RequestID() uint16 { return 0 }
func (r *GetValuesResult) Type() RecordType  { return TypeGetValuesResult }

func (r *GetValuesResult) Encode() []byte {
	content := EncodeNameValuePairs(r.Values)
	return append(encodeHeader(TypeGetValuesResult, 0, len(content)), content...)
}

func decodeGetValuesResult(content []byte) (*GetValuesResult, error) {
	pairs, err := DecodeNameValuePairs(content)
	if err != nil {
		return nil, err
	}
	return &GetValuesResult{Values: pairs}, nil
}

// UnknownType replies to a management record of a type the engine doesn't
// recognize. Outbound only, request_id == 0.
type UnknownType struct {
	RecType uint8
}

func (r *UnknownType) RequestID() uint16 { return 0 }
func (r *UnknownType) Type() RecordType  { return TypeUnknownType }

func (r *UnknownType) Encode() []byte {
	content := make([]byte, 8)
	content[0] = r.RecType
	return append(encodeHeader(TypeUnknownType, 0, len(content)), content...)
}

func decodeUnknownType(content []byte) (*UnknownType, error) {
	if len(content) < 1 {
		return nil, newProtocolError("truncated UnknownType body")
	}
	return &UnknownType{RecType: content[0]}, nil
}

// unknownManagementRecord is never exposed to callers; it is the internal
// signal the codec hands the connection dispatcher so it can reply with an
// UnknownType record, mirroring how the reference implementation keeps a
// private record class purely for that handoff.
type unknownManagementRecord struct {
	recType uint8
}

func (r unknownManagementRecord) RequestID() uint16 { return 0 }
func (r unknownManagementRecord) Type() RecordType  { return TypeUnknownType }
func (r unknownManagementRecord) Encode() []byte    { panic("unknownManagementRecord is never sent") }

// decodeRecord attempts to parse one record from the head of buf. It
// returns (nil, 0, nil) when buf does not yet hold a complete record. A
// returned record's content never aliases buf.
func decodeRecord(buf []byte) (Record, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, nil
	}

	h := DecodeHeader(buf[:HeaderSize])
	if h.Version != Version1 {
		return nil, 0, newProtocolError("unexpected protocol version: %d", buf[0])
	}

	total := HeaderSize + int(h.ContentLength) + int(h.PaddingLength)
	if len(buf) < total {
		return nil, 0, nil
	}

	content := make([]byte, h.ContentLength)
	copy(content, buf[HeaderSize:HeaderSize+int(h.ContentLength)])

	switch h.Type {
	case TypeBeginRequest:
		rec, err := decodeBeginRequest(h.RequestID, content)
		if err != nil {
			return nil, 0, err
		}
		return rec, total, nil
	case TypeAbortRequest:
		return &AbortRequest{ID: h.RequestID}, total, nil
	case TypeParams:
		return newParams(h.RequestID, content), total, nil
	case TypeStdin:
		return newStdin(h.RequestID, content), total, nil
	case TypeData:
		return newData(h.RequestID, content), total, nil
	case TypeStdout:
		return NewStdout(h.RequestID, content), total, nil
	case TypeStderr:
		return NewStderr(h.RequestID, content), total, nil
	case TypeEndRequest:
		rec, err := decodeEndRequest(h.RequestID, content)
		if err != nil {
			return nil, 0, err
		}
		return rec, total, nil
	case TypeGetValues:
		rec, err := decodeGetValues(content)
		if err != nil {
			return nil, 0, err
		}
		return rec, total, nil
	case TypeGetValuesResult:
		rec, err := decodeGetValuesResult(content)
		if err != nil {
			return nil, 0, err
		}
		return rec, total, nil
	case TypeUnknownType:
		rec, err := decodeUnknownType(content)
		if err != nil {
			return nil, 0, err
		}
		return rec, total, nil
	default:
		if h.RequestID == 0 {
			return unknownManagementRecord{recType: uint8(h.Type)}, total, nil
		}
		return nil, 0, newProtocolError("unknown record type: %d", uint8(h.Type))
	}
}
