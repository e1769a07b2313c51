package kintai_event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrMissingType     = errors.New("packet has no type")
	ErrUnknownPacket   = errors.New("unknown packet type")
)

const (
	TypeSubject = "subject"
	TypeWorkday = "workday"
	TypeEvent   = "event"
)

// Packet is one decoded line of input. Seq numbers packets in decode order.
type Packet interface {
	Type() string
	Seq() uint64
}

type SubjectPacket struct {
	seq  uint64
	ID   int64
	Name string
}

func (p SubjectPacket) Type() string { return TypeSubject }
func (p SubjectPacket) Seq() uint64  { return p.seq }

type WindowPacket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type WorkdayPacket struct {
	seq          uint64
	Subject      int64          `json:"subject"`
	Date         string         `json:"date"`
	WorkingHours float64        `json:"working_hours"`
	BreakHours   float64        `json:"break_hours"`
	Windows      []WindowPacket `json:"windows"`
}

func (p WorkdayPacket) Type() string { return TypeWorkday }
func (p WorkdayPacket) Seq() uint64  { return p.seq }

type EventPacket struct {
	seq     uint64
	Subject int64
	Kind    string
	At      time.Time
}

func (p EventPacket) Type() string { return TypeEvent }
func (p EventPacket) Seq() uint64  { return p.seq }

type Decoder func(seq uint64, raw []byte) (Packet, error)

// Sequence hands out increasing packet numbers starting at 1.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Registry dispatches raw packets to a decoder chosen by their "type" field.
type Registry struct {
	decoders map[string]Decoder
	seq      *Sequence
}

// NewRegistry returns a registry that knows the subject, workday and event packets.
func NewRegistry(seq *Sequence) *Registry {
	if seq == nil {
		seq = &Sequence{}
	}
	r := &Registry{decoders: make(map[string]Decoder), seq: seq}
	r.Register(TypeSubject, decodeSubject)
	r.Register(TypeWorkday, decodeWorkday)
	r.Register(TypeEvent, decodeEvent)
	return r
}

func (r *Registry) Register(typ string, d Decoder) {
	r.decoders[typ] = d
}

func (r *Registry) Decode(raw []byte) (Packet, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedPacket
	}
	typ := gjson.GetBytes(raw, "type")
	if !typ.Exists() {
		return nil, ErrMissingType
	}
	d, ok := r.decoders[typ.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPacket, typ.String())
	}
	return d(r.seq.Next(), raw)
}

func decodeSubject(seq uint64, raw []byte) (Packet, error) {
	res := gjson.GetManyBytes(raw, "id", "name")
	if !res[0].Exists() {
		return nil, fmt.Errorf("%w: subject without id", ErrMalformedPacket)
	}
	return SubjectPacket{seq: seq, ID: res[0].Int(), Name: res[1].String()}, nil
}

func decodeWorkday(seq uint64, raw []byte) (Packet, error) {
	p := WorkdayPacket{seq: seq}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	return p, nil
}

func decodeEvent(seq uint64, raw []byte) (Packet, error) {
	res := gjson.GetManyBytes(raw, "subject", "kind", "at")
	for i, name := range []string{"subject", "kind", "at"} {
		if !res[i].Exists() {
			return nil, fmt.Errorf("%w: event without %s", ErrMalformedPacket, name)
		}
	}
	at, err := time.Parse(time.RFC3339, res[2].String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	return EventPacket{seq: seq, Subject: res[0].Int(), Kind: res[1].String(), At: at}, nil
}
