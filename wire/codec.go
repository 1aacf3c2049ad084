package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers. They are part of the wire format and must never be reused.
const (
	fieldType     protowire.Number = 1
	fieldGroup    protowire.Number = 2
	fieldSeq      protowire.Number = 3
	fieldRoomID   protowire.Number = 4
	fieldVersion  protowire.Number = 5
	fieldPublic   protowire.Number = 6
	fieldDH       protowire.Number = 7
	fieldData     protowire.Number = 8
	fieldText     protowire.Number = 9
	fieldRSeq     protowire.Number = 10
	fieldReason   protowire.Number = 11
	fieldBox      protowire.Number = 12
	fieldProtocol protowire.Number = 13
	fieldID       protowire.Number = 14
	fieldTo       protowire.Number = 15
	fieldFrom     protowire.Number = 16
	fieldBody     protowire.Number = 17
	fieldMembers  protowire.Number = 18

	fieldAddrAddress protowire.Number = 1
	fieldAddrPort    protowire.Number = 2
)

// maxDepth bounds Body nesting; a relay envelope holds one peer packet.
const maxDepth = 2

// Marshal serializes the packet.
func (p *Packet) Marshal() ([]byte, error) {
	if p == nil {
		return nil, ErrPacketEmpty
	}
	return p.appendTo(nil, 0)
}

func (p *Packet) appendTo(b []byte, depth int) ([]byte, error) {
	if p.Type == "" && p.Protocol == "" && len(p.Box) == 0 {
		return nil, ErrPacketEmpty
	}
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrMalformed)
	}

	b = appendString(b, fieldType, p.Type)
	b = protowire.AppendTag(b, fieldGroup, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Group))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, p.Seq)

	b = appendString(b, fieldRoomID, p.RoomID)
	for _, v := range p.Version {
		b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	b = appendBytes(b, fieldPublic, p.Public)
	b = appendBytes(b, fieldDH, p.DH)
	b = appendBytes(b, fieldData, p.Data)
	b = appendString(b, fieldText, p.Text)
	if p.RSeq != 0 {
		b = protowire.AppendTag(b, fieldRSeq, protowire.VarintType)
		b = protowire.AppendVarint(b, p.RSeq)
	}
	b = appendString(b, fieldReason, p.Reason)
	b = appendBytes(b, fieldBox, p.Box)

	b = appendString(b, fieldProtocol, p.Protocol)
	b = appendString(b, fieldID, p.ID)
	if p.To != nil {
		b = appendAddr(b, fieldTo, *p.To)
	}
	if p.From != nil {
		b = appendAddr(b, fieldFrom, *p.From)
	}
	if p.Body != nil {
		body, err := p.Body.appendTo(nil, depth+1)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}
	for _, m := range p.Members {
		b = appendAddr(b, fieldMembers, m)
	}

	return b, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendAddr(b []byte, num protowire.Number, a Addr) []byte {
	var inner []byte
	inner = appendString(inner, fieldAddrAddress, a.Address)
	inner = protowire.AppendTag(inner, fieldAddrPort, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(a.Port))

	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// Unmarshal decodes a datagram into a Packet.
func Unmarshal(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, ErrPacketEmpty
	}
	p, err := unmarshal(data, 0)
	if err != nil {
		return nil, err
	}
	if p.Type == "" && p.Protocol == "" && len(p.Box) == 0 {
		return nil, ErrPacketEmpty
	}
	return p, nil
}

func unmarshal(data []byte, depth int) (*Packet, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrMalformed)
	}

	p := &Packet{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		n, err := p.consumeField(num, typ, data, depth)
		if err != nil {
			return nil, err
		}
		data = data[n:]
	}
	return p, nil
}

func (p *Packet) consumeField(num protowire.Number, typ protowire.Type, data []byte, depth int) (int, error) {
	switch num {
	case fieldGroup, fieldSeq, fieldVersion, fieldRSeq:
		if typ != protowire.VarintType {
			return 0, wrongType(num, typ)
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		if err := p.setVarint(num, v); err != nil {
			return 0, err
		}
		return n, nil

	case fieldType, fieldRoomID, fieldText, fieldReason, fieldProtocol, fieldID,
		fieldPublic, fieldDH, fieldData, fieldBox:
		if typ != protowire.BytesType {
			return 0, wrongType(num, typ)
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		p.setBytes(num, v)
		return n, nil

	case fieldTo, fieldFrom, fieldMembers, fieldBody:
		if typ != protowire.BytesType {
			return 0, wrongType(num, typ)
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		if err := p.setMessage(num, v, depth); err != nil {
			return 0, err
		}
		return n, nil

	default:
		n := protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		return n, nil
	}
}

func (p *Packet) setVarint(num protowire.Number, v uint64) error {
	switch num {
	case fieldGroup:
		if v >= NumGroups {
			return fmt.Errorf("%w: unknown group %d", ErrMalformed, v)
		}
		p.Group = Group(v)
	case fieldSeq:
		p.Seq = v
	case fieldVersion:
		p.Version = append(p.Version, uint32(v))
	case fieldRSeq:
		p.RSeq = v
	}
	return nil
}

func (p *Packet) setBytes(num protowire.Number, v []byte) {
	switch num {
	case fieldType:
		p.Type = string(v)
	case fieldRoomID:
		p.RoomID = string(v)
	case fieldText:
		p.Text = string(v)
	case fieldReason:
		p.Reason = string(v)
	case fieldProtocol:
		p.Protocol = string(v)
	case fieldID:
		p.ID = string(v)
	case fieldPublic:
		p.Public = append([]byte(nil), v...)
	case fieldDH:
		p.DH = append([]byte(nil), v...)
	case fieldData:
		p.Data = append([]byte(nil), v...)
	case fieldBox:
		p.Box = append([]byte(nil), v...)
	}
}

func (p *Packet) setMessage(num protowire.Number, v []byte, depth int) error {
	if num == fieldBody {
		body, err := unmarshal(v, depth+1)
		if err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		p.Body = body
		return nil
	}

	addr, err := unmarshalAddr(v)
	if err != nil {
		return err
	}
	switch num {
	case fieldTo:
		p.To = &addr
	case fieldFrom:
		p.From = &addr
	case fieldMembers:
		p.Members = append(p.Members, addr)
	}
	return nil
}

func unmarshalAddr(data []byte) (Addr, error) {
	var a Addr
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Addr{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldAddrAddress && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Addr{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			a.Address = v
			data = data[n:]
		case num == fieldAddrPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Addr{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			a.Port = int(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Addr{}, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return a, nil
}

func wrongType(num protowire.Number, typ protowire.Type) error {
	return fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
}
