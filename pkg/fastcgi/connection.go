package fastcgi

import "strconv"

// HeaderField is one response header key/value pair passed to SendHeaders.
// Both are byte slices because FastCGI's header block is raw bytes, not
// text the engine interprets.
type HeaderField struct {
	Key   []byte
	Value []byte
}

// Connection is the FastCGI connection state machine described in this
// package's documentation: it owns the input/output byte buffers, decodes
// and dispatches records, and multiplexes an arbitrary number of
// concurrent request_ids. It performs no I/O; the caller feeds it bytes
// and drains bytes from it.
//
// A Connection is not safe for concurrent use.
type Connection struct {
	roles      map[Role]bool
	fcgiValues map[string]string

	input  growBuffer
	output []byte

	requests map[uint16]*requestState
}

// NewConnection creates a connection state machine. roles defaults to
// []Role{RoleResponder} when empty. fcgiValues defaults to an empty map;
// FCGI_MPXS_CONNS is always set to "1" unless the caller already provided
// a value for it.
func NewConnection(roles []Role, fcgiValues map[string]string) *Connection {
	roleSet := make(map[Role]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	if len(roleSet) == 0 {
		roleSet[RoleResponder] = true
	}

	values := make(map[string]string, len(fcgiValues)+1)
	for k, v := range fcgiValues {
		values[k] = v
	}
	if _, ok := values["FCGI_MPXS_CONNS"]; !ok {
		values["FCGI_MPXS_CONNS"] = "1"
	}

	return &Connection{
		roles:      roleSet,
		fcgiValues: values,
		requests:   make(map[uint16]*requestState),
	}
}

// FeedData appends data to the connection's input buffer and decodes as
// many complete records as are available, dispatching each one and
// returning the events they produced, in arrival order. Dispatching a
// record may enqueue outbound bytes; call DataToSend to retrieve them.
//
// A non-nil error means the peer violated the protocol; the returned event
// list is always nil in that case, and the caller should tear down the
// connection.
func (c *Connection) FeedData(data []byte) ([]Event, error) {
	c.input.write(data)

	var events []Event
	for {
		rec, consumed, err := decodeRecord(c.input.bytes())
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return events, nil
		}
		c.input.advance(consumed)

		if rec.RequestID() != 0 {
			event, err := c.dispatchRequestRecord(rec)
			if err != nil {
				return nil, err
			}
			if event != nil {
				events = append(events, event)
			}
			continue
		}

		if err := c.dispatchManagementRecord(rec); err != nil {
			return nil, err
		}
	}
}

func (c *Connection) dispatchRequestRecord(rec Record) (Event, error) {
	rs := c.requestState(rec.RequestID())
	event, err := rs.receiveRecord(rec)
	if err != nil {
		return nil, err
	}

	if begin, ok := rec.(*BeginRequest); ok && !c.roles[begin.Role] {
		if err := c.sendRecord(&EndRequest{
			ID:             rec.RequestID(),
			AppStatus:      0,
			ProtocolStatus: StatusUnknownRole,
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return event, nil
}

func (c *Connection) dispatchManagementRecord(rec Record) error {
	switch v := rec.(type) {
	case *GetValues:
		var values []Pair
		for _, key := range v.Keys {
			if value, ok := c.fcgiValues[key]; ok {
				values = append(values, Pair{Name: key, Value: value})
			}
		}
		return c.sendRecord(&GetValuesResult{Values: values})
	case unknownManagementRecord:
		return c.sendRecord(&UnknownType{RecType: v.recType})
	}
	return nil
}

// DataToSend atomically drains and returns all bytes queued for the peer.
func (c *Connection) DataToSend() []byte {
	if len(c.output) == 0 {
		return nil
	}
	data := c.output
	c.output = nil
	return data
}

// SendHeaders enqueues a Stdout record carrying an HTTP-style header block:
// a "Status: <code>\r\n" line when status is non-nil, then "key: value\r\n"
// for each header, followed by a blank line.
func (c *Connection) SendHeaders(requestID uint16, headers []HeaderField, status *int) error {
	var payload []byte
	if status != nil {
		payload = append(payload, []byte(statusLine(*status))...)
	}
	for _, h := range headers {
		payload = append(payload, h.Key...)
		payload = append(payload, ':', ' ')
		payload = append(payload, h.Value...)
		payload = append(payload, '\r', '\n')
	}
	payload = append(payload, '\r', '\n')

	return c.sendRecord(NewStdout(requestID, payload))
}

func statusLine(status int) string {
	return "Status: " + strconv.Itoa(status) + "\r\n"
}

// SendData enqueues a Stdout record carrying response body bytes. When
// endRequest is true, it follows with an empty Stdout (end of stream) and
// an EndRequest(REQUEST_COMPLETE).
func (c *Connection) SendData(requestID uint16, data []byte, endRequest bool) error {
	if err := c.sendRecord(NewStdout(requestID, data)); err != nil {
		return err
	}
	if !endRequest {
		return nil
	}
	if err := c.sendRecord(NewStdout(requestID, nil)); err != nil {
		return err
	}
	return c.EndRequest(requestID)
}

// EndRequest enqueues an EndRequest(REQUEST_COMPLETE) record, finishing the
// request.
func (c *Connection) EndRequest(requestID uint16) error {
	return c.sendRecord(&EndRequest{ID: requestID, AppStatus: 0, ProtocolStatus: StatusRequestComplete})
}

// sendRecord validates rec against the owning request's state machine (for
// per-request records) and, on success, appends its encoded bytes to the
// output buffer. A request whose state machine reaches FINISHED is evicted
// from the request map. Management records (request_id == 0) bypass the
// per-request machinery entirely, matching their role as connection-level
// traffic.
func (c *Connection) sendRecord(rec Record) error {
	id := rec.RequestID()
	if id != 0 {
		rs := c.requestState(id)
		if err := rs.sendRecord(rec); err != nil {
			return err
		}
		if rs.state == stateFinished {
			delete(c.requests, id)
		}
	}

	c.output = append(c.output, rec.Encode()...)
	return nil
}

// requestState returns the state machine for id, lazily creating one if
// this is the first record ever seen for it. A stray non-BeginRequest
// record for a fresh id is therefore accepted far enough to allocate a
// state entry, then rejected by the state machine with the same
// *ProtocolError an immediate-rejection implementation would produce.
func (c *Connection) requestState(id uint16) *requestState {
	rs, ok := c.requests[id]
	if !ok {
		rs = newRequestState()
		c.requests[id] = rs
	}
	return rs
}
