package fastcgi

// requestFSMState enumerates the legal lifecycle stages of a single
// request_id, per §4.3 of the protocol design.
type requestFSMState int

const (
	stateExpectBeginRequest requestFSMState = iota
	stateExpectParams
	stateExpectStdin
	stateExpectData
	stateExpectStdout
	stateExpectEndRequest
	stateFinished
)

var requestStateNames = map[requestFSMState]string{
	stateExpectBeginRequest: "EXPECT_BEGIN_REQUEST",
	stateExpectParams:       "EXPECT_PARAMS",
	stateExpectStdin:        "EXPECT_STDIN",
	stateExpectData:         "EXPECT_DATA",
	stateExpectStdout:       "EXPECT_STDOUT",
	stateExpectEndRequest:   "EXPECT_END_REQUEST",
	stateFinished:           "FINISHED",
}

func (s requestFSMState) String() string { return requestStateNames[s] }

// requestState is the per-request_id state machine: it enforces the legal
// ordering of inbound and outbound record types for one live request.
type requestState struct {
	state        requestFSMState
	role         Role
	flags        uint8
	paramsBuffer []byte
}

func newRequestState() *requestState {
	return &requestState{state: stateExpectBeginRequest}
}

// receiveRecord applies an inbound record to the state machine, returning
// the event (if any) it produces, or a *ProtocolError if the record is not
// legal in the current state.
func (r *requestState) receiveRecord(rec Record) (Event, error) {
	switch v := rec.(type) {
	case *BeginRequest:
		if r.state == stateExpectBeginRequest {
			r.role = v.Role
			r.flags = v.Flags
			r.state = stateExpectParams
			return nil, nil
		}
	case *Params:
		if r.state == stateExpectParams {
			if len(v.Content) > 0 {
				r.paramsBuffer = append(r.paramsBuffer, v.Content...)
				return nil, nil
			}
			pairs, err := DecodeNameValuePairs(r.paramsBuffer)
			if err != nil {
				return nil, err
			}
			if r.role == RoleAuthorizer {
				r.state = stateExpectStdout
			} else {
				r.state = stateExpectStdin
			}
			return &RequestBegin{
				ID:             v.ID,
				Role:           r.role,
				KeepConnection: r.flags&FlagKeepConn != 0,
				Params:         ParamList(pairs),
			}, nil
		}
	case *Stdin:
		if r.state == stateExpectStdin {
			if len(v.Content) == 0 {
				if r.role == RoleFilter {
					r.state = stateExpectData
				} else {
					r.state = stateExpectStdout
				}
			}
			return &RequestData{ID: v.ID, Data: v.Content}, nil
		}
	case *Data:
		if r.state == stateExpectData {
			if len(v.Content) == 0 {
				r.state = stateExpectStdout
			}
			return &RequestSecondaryData{ID: v.ID, Data: v.Content}, nil
		}
	case *AbortRequest:
		if r.state > stateExpectBeginRequest && r.state < stateFinished {
			r.state = stateExpectEndRequest
			return &RequestAbort{ID: v.ID}, nil
		}
	}

	return nil, newProtocolError("received unexpected %s record in the %s state", rec.Type(), r.state)
}

// sendRecord validates an outbound record against the state machine,
// transitioning state on success.
func (r *requestState) sendRecord(rec Record) error {
	switch v := rec.(type) {
	case *Stdout:
		if r.state == stateExpectStdout {
			if len(v.Content) == 0 {
				r.state = stateExpectEndRequest
			}
			return nil
		}
	case *EndRequest:
		switch r.state {
		case stateExpectEndRequest:
			if v.ProtocolStatus == StatusRequestComplete {
				r.state = stateFinished
				return nil
			}
		case stateExpectParams:
			// A request may still be rejected (role mismatch) right after
			// it arrives, but not once it has progressed further.
			if v.ProtocolStatus != StatusRequestComplete {
				r.state = stateFinished
				return nil
			}
		}
	}

	return newProtocolError("cannot send %s record in the %s state", rec.Type(), r.state)
}
