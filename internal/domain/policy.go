package domain

import (
	"time"

	"github.com/google/uuid"
)

// Policy holds the tunable eligibility constants. It is passed explicitly to the
// call ledger (cooldown) and the eligibility engine (cooldown and fatigue caps).
type Policy struct {
	Cooldown  time.Duration
	DailyCap  int
	WeeklyCap int

	// Location defines "start of day" for the daily cap. Nil means UTC.
	Location *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		Cooldown:  24 * time.Hour,
		DailyCap:  3,
		WeeklyCap: 10,
		Location:  time.UTC,
	}
}

// WithDefaults fills zero values with DefaultPolicy values.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.Cooldown <= 0 {
		p.Cooldown = d.Cooldown
	}
	if p.DailyCap <= 0 {
		p.DailyCap = d.DailyCap
	}
	if p.WeeklyCap <= 0 {
		p.WeeklyCap = d.WeeklyCap
	}
	if p.Location == nil {
		p.Location = d.Location
	}
	return p
}

// StartOfDay truncates now to midnight in the policy location.
func (p Policy) StartOfDay(now time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SubjectKind selects which foreign key call sessions are counted by.
type SubjectKind string

const (
	SubjectProject SubjectKind = "project"
	SubjectContact SubjectKind = "contact"
)

// Subject identifies whose calls a fatigue check counts.
type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

func ProjectSubject(id uuid.UUID) Subject { return Subject{Kind: SubjectProject, ID: id} }
func ContactSubject(id uuid.UUID) Subject { return Subject{Kind: SubjectContact, ID: id} }
