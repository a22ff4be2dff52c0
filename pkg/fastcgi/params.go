package fastcgi

import "encoding/binary"

// Pair is a single FastCGI name-value pair. Names are ASCII, values are
// UTF-8; both are ordinary Go strings.
type Pair struct {
	Name  string
	Value string
}

// ParamList is an ordered list of name-value pairs, preserving the wire
// order of the pairs it was decoded from.
type ParamList []Pair

// Get returns the value of the first pair named name.
func (p ParamList) Get(name string) (string, bool) {
	for _, pair := range p {
		if pair.Name == name {
			return pair.Value, true
		}
	}
	return "", false
}

func encodeLength(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(n)|0x80000000)
	return buf
}

// EncodeNameValuePairs renders a list of pairs in FastCGI wire form: for
// each pair, a name length, a value length, then the name bytes and value
// bytes. A length below 128 is a single byte; otherwise it is four
// big-endian bytes with the top bit of the first byte set.
func EncodeNameValuePairs(pairs []Pair) []byte {
	var out []byte
	for _, pair := range pairs {
		name := []byte(pair.Name)
		value := []byte(pair.Value)
		out = append(out, encodeLength(len(name))...)
		out = append(out, encodeLength(len(value))...)
		out = append(out, name...)
		out = append(out, value...)
	}
	return out
}

// DecodeNameValuePairs parses a FastCGI name-value pair list out of buf.
//
// The short-form length test for a pair's value intentionally requires
// strictly more than one remaining byte before treating the next byte as a
// one-byte length (len(buf)-index > 1, not >= 1): a buffer holding exactly
// one trailing byte for a short value length falls through to the
// long-form branch and fails instead of succeeding. This mirrors the
// reference decoder's behavior and is pinned by tests rather than "fixed",
// since real peers never produce that input.
func DecodeNameValuePairs(buf []byte) ([]Pair, error) {
	var pairs []Pair
	index := 0
	n := len(buf)

	for index < n {
		var nameLen int
		switch {
		case buf[index]&0x80 == 0:
			nameLen = int(buf[index])
			index++
		case n-index > 4:
			nameLen = int(binary.BigEndian.Uint32(buf[index:index+4]) & 0x7fffffff)
			index += 4
		default:
			return nil, newProtocolError("not enough data to decode name length in name-value pair")
		}

		var valueLen int
		switch {
		case n-index > 1 && buf[index]&0x80 == 0:
			valueLen = int(buf[index])
			index++
		case n-index > 4:
			valueLen = int(binary.BigEndian.Uint32(buf[index:index+4]) & 0x7fffffff)
			index += 4
		default:
			return nil, newProtocolError("not enough data to decode value length in name-value pair")
		}

		if n-index < nameLen+valueLen {
			return nil, newProtocolError("name/value data missing from buffer")
		}

		name := string(buf[index : index+nameLen])
		value := string(buf[index+nameLen : index+nameLen+valueLen])
		pairs = append(pairs, Pair{Name: name, Value: value})
		index += nameLen + valueLen
	}

	return pairs, nil
}
