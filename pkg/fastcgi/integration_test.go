package fastcgi

import (
	"bytes"
	"strconv"
	"testing"
)

// echoApp drives server exactly the way a transport collaborator would:
// feed bytes in, react to events, push bytes out. It mirrors the shape of
// the reference asyncio-server.py example (buffer params/body until Stdin
// EOF, then reply with headers and a body).
type echoApp struct {
	server  *Connection
	pending map[uint16]*pendingRequest
}

type pendingRequest struct {
	params   ParamList
	keepConn bool
	body     bytes.Buffer
}

func newEchoApp(server *Connection) *echoApp {
	return &echoApp{server: server, pending: make(map[uint16]*pendingRequest)}
}

func (a *echoApp) handle(data []byte) ([]byte, error) {
	events, err := a.server.FeedData(data)
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		switch e := ev.(type) {
		case *RequestBegin:
			a.pending[e.ID] = &pendingRequest{params: e.Params, keepConn: e.KeepConnection}
		case *RequestData:
			req := a.pending[e.ID]
			if len(e.Data) > 0 {
				req.body.Write(e.Data)
				continue
			}
			delete(a.pending, e.ID)
			body := req.body.Bytes()
			if err := a.server.SendHeaders(e.ID, []HeaderField{
				{Key: []byte("Content-Length"), Value: []byte(strconv.Itoa(len(body)))},
			}, nil); err != nil {
				return nil, err
			}
			if err := a.server.SendData(e.ID, body, true); err != nil {
				return nil, err
			}
		}
	}

	return a.server.DataToSend(), nil
}

func TestEndToEndEchoRequest(t *testing.T) {
	server := NewConnection(nil, nil)
	app := newEchoApp(server)

	var wire []byte
	wire = append(wire, (&BeginRequest{ID: 7, Role: RoleResponder}).Encode()...)
	wire = append(wire, newParams(7, EncodeNameValuePairs([]Pair{{Name: "REQUEST_METHOD", Value: "POST"}})).Encode()...)
	wire = append(wire, newParams(7, nil).Encode()...)
	wire = append(wire, newStdin(7, []byte("ping")).Encode()...)
	wire = append(wire, newStdin(7, nil).Encode()...)

	out, err := app.handle(wire)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := append(
		NewStdout(7, []byte("Content-Length: 4\r\n\r\n")).Encode(),
		append(
			NewStdout(7, []byte("ping")).Encode(),
			append(NewStdout(7, nil).Encode(),
				(&EndRequest{ID: 7, ProtocolStatus: StatusRequestComplete}).Encode()...)...,
		)...,
	)
	if !bytes.Equal(out, want) {
		t.Errorf("out = %q, want %q", out, want)
	}
	if _, ok := server.requests[7]; ok {
		t.Error("request 7 should be evicted after completion")
	}
}

func TestEndToEndSplitAcrossManyFeeds(t *testing.T) {
	server := NewConnection(nil, nil)
	app := newEchoApp(server)

	wire := buildRequestBytes()
	var out []byte
	for i := range wire {
		chunk, err := app.handle(wire[i : i+1])
		if err != nil {
			t.Fatalf("handle byte %d: %v", i, err)
		}
		out = append(out, chunk...)
	}

	// The final Stdin EOF in buildRequestBytes triggers the echo reply;
	// confirm we got a well-formed Stdout/EndRequest tail.
	if len(out) == 0 {
		t.Fatal("expected a reply once the request completed")
	}
	tail := append(NewStdout(1, nil).Encode(),
		(&EndRequest{ID: 1, ProtocolStatus: StatusRequestComplete}).Encode()...)
	if !bytes.HasSuffix(out, tail) {
		t.Errorf("out = %q, want suffix %q", out, tail)
	}
	if _, ok := server.requests[1]; ok {
		t.Error("request 1 should be evicted after completion")
	}
}
