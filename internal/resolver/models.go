package resolver

import (
	"time"

	"outbound-crm/internal/domain"
)

// UpsertResult is returned by every upsert.
type UpsertResult[T any] struct {
	Record  T    `json:"record"`
	Created bool `json:"created"`

	// MatchedBy names the rule that found the existing row ("" when created).
	MatchedBy string `json:"matched_by,omitempty"`

	// Conflicts lists payload natural keys that already belong to a different row
	// and were therefore not written.
	Conflicts []string `json:"conflicts,omitempty"`
}

// ProjectInput is a partial project. A nil field is absent and leaves the stored value alone.
type ProjectInput struct {
	ExternalID string `json:"external_id" binding:"required"`

	Name     *string  `json:"name,omitempty"`
	Address  *string  `json:"address,omitempty"`
	City     *string  `json:"city,omitempty"`
	State    *string  `json:"state,omitempty"`
	Zip      *string  `json:"zip,omitempty"`
	Country  *string  `json:"country,omitempty"`
	Category *string  `json:"category,omitempty"`
	Budget   *float64 `json:"budget,omitempty" binding:"omitempty,gte=0"`

	BidDueAt *time.Time `json:"bid_due_at,omitempty"`
	StartAt  *time.Time `json:"start_at,omitempty"`

	PriorityScore  *int  `json:"priority_score,omitempty"`
	CallSuppressed *bool `json:"call_suppressed,omitempty"`
}

func (in ProjectInput) apply(p *domain.Project) {
	setString(&p.Name, in.Name)
	setString(&p.Address, in.Address)
	setString(&p.City, in.City)
	setString(&p.State, in.State)
	setString(&p.Zip, in.Zip)
	setString(&p.Country, in.Country)
	setString(&p.Category, in.Category)
	if in.Budget != nil {
		v := *in.Budget
		p.Budget = &v
	}
	if in.BidDueAt != nil {
		v := in.BidDueAt.UTC()
		p.BidDueAt = &v
	}
	if in.StartAt != nil {
		v := in.StartAt.UTC()
		p.StartAt = &v
	}
	if in.PriorityScore != nil {
		p.PriorityScore = *in.PriorityScore
	}
	if in.CallSuppressed != nil {
		p.CallSuppressed = *in.CallSuppressed
	}
	if p.Country == "" {
		p.Country = domain.DefaultCountry
	}
}

// ContactInput is a partial contact. At least one of ExternalID, Phone, Email is required.
type ContactInput struct {
	ExternalID *string `json:"external_id,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty" binding:"omitempty,email"`

	FirstName         *string `json:"first_name,omitempty"`
	LastName          *string `json:"last_name,omitempty"`
	Company           *string `json:"company,omitempty"`
	PreferredChannel  *string `json:"preferred_channel,omitempty"`
	Role              *string `json:"role,omitempty"`
	DecisionAuthority *string `json:"decision_authority,omitempty"`

	DoNotCall *bool `json:"do_not_call,omitempty"`
}

// normalized trims keys, lower-cases email and drops keys that are blank.
func (in ContactInput) normalized() ContactInput {
	out := in
	out.ExternalID = trimmed(in.ExternalID, false)
	out.Phone = trimmed(in.Phone, false)
	out.Email = trimmed(in.Email, true)
	return out
}

func (in ContactInput) hasKey() bool {
	return in.ExternalID != nil || in.Phone != nil || in.Email != nil
}

// applyProfile copies the non-key fields.
func (in ContactInput) applyProfile(c *domain.Contact) {
	setString(&c.FirstName, in.FirstName)
	setString(&c.LastName, in.LastName)
	setString(&c.Company, in.Company)
	setString(&c.PreferredChannel, in.PreferredChannel)
	setString(&c.Role, in.Role)
	setString(&c.DecisionAuthority, in.DecisionAuthority)
	if in.DoNotCall != nil {
		c.DoNotCall = *in.DoNotCall
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
