package expr

// Metric variable names usable in conditions.
const (
	VarWithdrawnAmount         = "withdrawnAmount"
	VarSettledCommissionAmount = "settledCommissionAmount"
	VarInviteeCount            = "inviteeCount"
	VarOrderCount              = "orderCount"
	VarActiveInviteeCount      = "activeInviteeCount"
)

// Variables is the complete whitelist, in display order.
var Variables = []string{
	VarWithdrawnAmount,
	VarSettledCommissionAmount,
	VarInviteeCount,
	VarOrderCount,
	VarActiveInviteeCount,
}

// VariableDescriptions documents each variable for CLI help and rule authors.
var VariableDescriptions = map[string]string{
	VarWithdrawnAmount:         "total amount of completed withdrawals",
	VarSettledCommissionAmount: "total settled commission",
	VarInviteeCount:            "number of directly invited users",
	VarOrderCount:              "number of orders placed by invitees",
	VarActiveInviteeCount:      "invitees active within the last 30 days",
}

// Env supplies variable values during evaluation.
type Env interface {
	Lookup(name string) (float64, bool)
}

// Vars is a map-backed Env.
type Vars map[string]float64

// Lookup implements Env.
func (v Vars) Lookup(name string) (float64, bool) {
	val, ok := v[name]
	return val, ok
}
