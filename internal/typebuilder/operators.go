package typebuilder

import (
	"github.com/jobez/dojo/internal/schema"
)

// Op is a comparison operator usable in a where input.
type Op int

const (
	OpEQ Op = iota
	OpNEQ
	OpGT
	OpGTE
	OpLT
	OpLTE
)

var opNames = [...]string{"EQ", "NEQ", "GT", "GTE", "LT", "LTE"}

func (o Op) String() string {
	if o < OpEQ || o > OpLTE {
		return "UNKNOWN"
	}
	return opNames[o]
}

// Ordering reports whether the operator compares by order rather than equality.
func (o Op) Ordering() bool {
	return o >= OpGT && o <= OpLTE
}

// Suffix returns the where input name suffix. Equality uses the bare member name.
func (o Op) Suffix() string {
	if o == OpEQ {
		return ""
	}
	return o.String()
}

// operatorTable is the single source of truth for which operators a kind accepts.
var operatorTable = map[schema.Kind][]Op{
	schema.KindInt:    {OpEQ, OpNEQ, OpGT, OpGTE, OpLT, OpLTE},
	schema.KindFelt:   {OpEQ, OpNEQ, OpGT, OpGTE, OpLT, OpLTE},
	schema.KindString: {OpEQ, OpNEQ},
	schema.KindBytes:  {OpEQ, OpNEQ},
	schema.KindBool:   {OpEQ, OpNEQ},
}

// Operators returns the operators allowed for a kind, in canonical order.
func Operators(kind schema.Kind) []Op {
	return append([]Op(nil), operatorTable[kind]...)
}

// Allows reports whether op is legal for kind.
func Allows(kind schema.Kind, op Op) bool {
	for _, allowed := range operatorTable[kind] {
		if allowed == op {
			return true
		}
	}
	return false
}

// ParseSuffix splits a where input name into member name and operator.
// Names without a recognised suffix are equality filters on the whole name.
func ParseSuffix(inputName string) (string, Op) {
	// Longest suffixes first so "xGTE" is not read as "xGT" + "E".
	for _, op := range []Op{OpNEQ, OpGTE, OpLTE, OpGT, OpLT} {
		suffix := op.Suffix()
		if len(inputName) > len(suffix) && inputName[len(inputName)-len(suffix):] == suffix {
			return inputName[:len(inputName)-len(suffix)], op
		}
	}
	return inputName, OpEQ
}
