package ledger

// Role gates which events an account may originate.
type Role string

const (
	// RoleProducer may mint tokens into a line.
	RoleProducer Role = "producer"
	// RoleLine may forward tokens to a substation.
	RoleLine Role = "line"
	// RoleSubstation may transfer tokens to its registered consumers.
	RoleSubstation Role = "substation"
	// RoleConsumer may burn the tokens it received.
	RoleConsumer Role = "consumer"
)

// Roles lists every role.
var Roles = []Role{RoleProducer, RoleLine, RoleSubstation, RoleConsumer}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleProducer, RoleLine, RoleSubstation, RoleConsumer:
		return true
	}
	return false
}

// originRole is the role required from the sender of each event kind.
func originRole(k Kind) Role {
	switch k {
	case KindGeneration:
		return RoleProducer
	case KindTransmission:
		return RoleLine
	case KindDistribution:
		return RoleSubstation
	default:
		return RoleConsumer
	}
}
