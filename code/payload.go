package code

import "fmt"

// PayloadKind identifies the data table a payload pseudo-instruction holds.
type PayloadKind uint8

const (
	PackedSwitchPayload PayloadKind = iota
	SparseSwitchPayload
	ArrayPayload
)

// Payload identifiers, written as the first code unit of the table.
const (
	packedSwitchIdent uint16 = 0x0100
	sparseSwitchIdent uint16 = 0x0200
	arrayDataIdent    uint16 = 0x0300
)

func (k PayloadKind) String() string {
	switch k {
	case PackedSwitchPayload:
		return "packed-switch-payload"
	case SparseSwitchPayload:
		return "sparse-switch-payload"
	case ArrayPayload:
		return "array-payload"
	default:
		return "unknown-payload"
	}
}

// Payload is the data table referenced by a switch or fill-array-data
// instruction. Switch targets are encoded relative to the address of User,
// the label bound to the switch instruction itself.
type Payload struct {
	Kind     PayloadKind
	User     Label
	FirstKey int32
	Keys     []int32
	Targets  []Label
	// ElementWidth is the size in bytes of each array element: 1, 2, 4 or 8.
	ElementWidth int
	Values       []int64
}

// CodeUnits returns the encoded size of the payload.
func (p *Payload) CodeUnits() int {
	switch p.Kind {
	case PackedSwitchPayload:
		return 4 + 2*len(p.Targets)
	case SparseSwitchPayload:
		return 2 + 4*len(p.Targets)
	case ArrayPayload:
		return 4 + (p.ElementWidth*len(p.Values)+1)/2
	default:
		return 0
	}
}

func (p *Payload) validate() error {
	switch p.Kind {
	case PackedSwitchPayload:
		if len(p.Targets) > 0xffff {
			return fmt.Errorf("packed switch has %d targets", len(p.Targets))
		}
	case SparseSwitchPayload:
		if len(p.Keys) != len(p.Targets) {
			return fmt.Errorf("sparse switch has %d keys and %d targets", len(p.Keys), len(p.Targets))
		}
		if len(p.Targets) > 0xffff {
			return fmt.Errorf("sparse switch has %d targets", len(p.Targets))
		}
		for i := 1; i < len(p.Keys); i++ {
			if p.Keys[i] <= p.Keys[i-1] {
				return fmt.Errorf("sparse switch keys must be sorted and unique")
			}
		}
	case ArrayPayload:
		switch p.ElementWidth {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("invalid array element width %d", p.ElementWidth)
		}
	}
	return nil
}

// encode writes the payload. addressOf resolves labels; base is the address
// of the instruction using the payload.
func (p *Payload) encode(units []uint16, addressOf func(Label) int) []uint16 {
	base := addressOf(p.User)
	switch p.Kind {
	case PackedSwitchPayload:
		units = append(units, packedSwitchIdent, uint16(len(p.Targets)))
		units = appendU32(units, uint32(p.FirstKey))
		for _, t := range p.Targets {
			units = appendU32(units, uint32(int32(addressOf(t)-base)))
		}
	case SparseSwitchPayload:
		units = append(units, sparseSwitchIdent, uint16(len(p.Targets)))
		for _, k := range p.Keys {
			units = appendU32(units, uint32(k))
		}
		for _, t := range p.Targets {
			units = appendU32(units, uint32(int32(addressOf(t)-base)))
		}
	case ArrayPayload:
		units = append(units, arrayDataIdent, uint16(p.ElementWidth))
		units = appendU32(units, uint32(len(p.Values)))
		data := make([]byte, 0, p.ElementWidth*len(p.Values)+1)
		for _, v := range p.Values {
			for b := 0; b < p.ElementWidth; b++ {
				data = append(data, byte(v>>(8*b)))
			}
		}
		if len(data)%2 == 1 {
			data = append(data, 0)
		}
		for i := 0; i < len(data); i += 2 {
			units = append(units, uint16(data[i])|uint16(data[i+1])<<8)
		}
	}
	return units
}

func appendU32(units []uint16, v uint32) []uint16 {
	return append(units, uint16(v), uint16(v>>16))
}
