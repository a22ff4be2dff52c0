package fastcgi

// Event is implemented by every value FeedData can hand back to the
// application. Each variant targets a specific live request.
type Event interface {
	RequestID() uint16
	isEvent()
}

// RequestBegin is emitted exactly once per request, once its Params stream
// has reached EOF. Params preserves the wire order of the name-value pairs.
type RequestBegin struct {
	ID             uint16
	Role           Role
	KeepConnection bool
	Params         ParamList
}

func (e *RequestBegin) RequestID() uint16 { return e.ID }
func (e *RequestBegin) isEvent()          {}

// RequestData carries one Stdin record's payload; an empty Data marks end
// of the request body.
type RequestData struct {
	ID   uint16
	Data []byte
}

func (e *RequestData) RequestID() uint16 { return e.ID }
func (e *RequestData) isEvent()          {}

// RequestSecondaryData carries one Data record's payload for a filter-role
// request; an empty Data marks end of stream.
type RequestSecondaryData struct {
	ID   uint16
	Data []byte
}

func (e *RequestSecondaryData) RequestID() uint16 { return e.ID }
func (e *RequestSecondaryData) isEvent()          {}

// RequestAbort reports that the peer asked for the request to be
// abandoned.
type RequestAbort struct {
	ID uint16
}

func (e *RequestAbort) RequestID() uint16 { return e.ID }
func (e *RequestAbort) isEvent()          {}
