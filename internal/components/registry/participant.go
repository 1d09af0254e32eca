package registry

// Eligible statuses.
const (
	StatusAccepted  = "ACCEPTED"
	StatusConfirmed = "CONFIRMED"
)

// Participant is the registry's record for one external identity.
type Participant struct {
	Status    string `json:"status"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Eligible reports whether the participant may be promoted.
func (p *Participant) Eligible() bool {
	return p.Status == StatusAccepted || p.Status == StatusConfirmed
}

// DisplayName is first and last name joined by a single space, verbatim.
func (p *Participant) DisplayName() string {
	return p.FirstName + " " + p.LastName
}
