package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"outbound-crm/internal/apperr"
	"outbound-crm/internal/association"
	"outbound-crm/internal/calls"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/eligibility"
	"outbound-crm/internal/reporting"
	"outbound-crm/internal/resolver"
	"outbound-crm/internal/terminal"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderActor names who performs a terminal-state removal.
const HeaderActor = "X-Actor"

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Projects    *resolver.ProjectService
	Contacts    *resolver.ContactService
	Links       *association.Manager
	Ledger      *calls.Ledger
	Terminals   *terminal.Registry
	Eligibility *eligibility.Engine
	Reports     *reporting.Service

	// Ping reports storage health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now == nil {
		return time.Now().UTC()
	}
	return h.Now().UTC()
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, apperr.Invalid("%s must be a uuid", name))
		return uuid.Nil, false
	}
	return id, true
}

func (h Handlers) Health(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			fail(c, apperr.Unavailable("storage unavailable", err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Projects & contacts ---

func (h Handlers) UpsertProject(c *gin.Context) {
	var req resolver.ProjectInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Projects.Upsert(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, createdStatus(res.Created), res)
}

func (h Handlers) GetProject(c *gin.Context) {
	p, err := h.Projects.GetByExternalID(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

func (h Handlers) UpsertContact(c *gin.Context) {
	var req resolver.ContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Contacts.Upsert(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, createdStatus(res.Created), res)
}

func (h Handlers) GetContact(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	contact, err := h.Contacts.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, contact)
}

// LinkContact links a contact to a project. The body is optional.
func (h Handlers) LinkContact(c *gin.Context) {
	contactID, valid := parseID(c, "contact_id")
	if !valid {
		return
	}
	var req association.LinkInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	p, err := h.Projects.GetByExternalID(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		fail(c, err)
		return
	}
	res, err := h.Links.Link(c.Request.Context(), p.ID, contactID, req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, createdStatus(res.Created), res)
}

// --- Call sessions ---

func (h Handlers) CreateCallSession(c *gin.Context) {
	var req calls.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.Ledger.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, createdStatus(res.Created), res)
}

func (h Handlers) UpdateCallSession(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	var req calls.Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.Ledger.Update(c.Request.Context(), id, req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

func (h Handlers) GetCallSession(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	s, err := h.Ledger.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// --- Terminal sessions ---

func (h Handlers) CreateTerminal(c *gin.Context) {
	var req terminal.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = c.GetHeader(HeaderActor)
	}
	res, err := h.Terminals.Create(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, createdStatus(res.Created), res)
}

func (h Handlers) RemoveTerminal(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	actor := c.GetHeader(HeaderActor)
	if actor == "" {
		actor = c.Query("actor")
	}
	ts, err := h.Terminals.Remove(c.Request.Context(), id, actor)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}

func (h Handlers) GetTerminal(c *gin.Context) {
	id, valid := parseID(c, "id")
	if !valid {
		return
	}
	ts, err := h.Terminals.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}

type activeTerminalQuery struct {
	Scope      string `form:"scope" binding:"required,oneof=project contact global"`
	ResourceID string `form:"resource_id" binding:"omitempty,uuid"`
}

func (h Handlers) ActiveTerminal(c *gin.Context) {
	var q activeTerminalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	scope, err := domain.ParseScope(q.Scope)
	if err != nil {
		fail(c, apperr.Invalid("%v", err))
		return
	}
	var resourceID *uuid.UUID
	if q.ResourceID != "" {
		id := uuid.MustParse(q.ResourceID)
		resourceID = &id
	}
	st, err := h.Terminals.IsActive(c.Request.Context(), scope, resourceID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// --- Eligibility ---

type eligibilityQuery struct {
	ContactID         string `form:"contact_id" binding:"omitempty,uuid"`
	ContactExternalID string `form:"contact_external_id"`
}

// IsEligible answers for one project and an optional contact. Infrastructure failures
// are reported as 503 with eligible=false, never as an allow.
func (h Handlers) IsEligible(c *gin.Context) {
	var q eligibilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	var ref *eligibility.ContactRef
	if q.ContactID != "" || strings.TrimSpace(q.ContactExternalID) != "" {
		ref = &eligibility.ContactRef{}
		if q.ContactID != "" {
			id := uuid.MustParse(q.ContactID)
			ref.ID = &id
		}
		if ext := strings.TrimSpace(q.ContactExternalID); ext != "" {
			ref.ExternalID = &ext
		}
	}
	d, err := h.Eligibility.IsEligible(c.Request.Context(), c.Param("project_external_id"), ref)
	if err != nil {
		failWith(c, err, gin.H{"eligible": false})
		return
	}
	ok(c, http.StatusOK, d)
}

type bulkEligibilityQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type bulkEligibility struct {
	Count      int                `json:"count"`
	Candidates []domain.Candidate `json:"candidates"`
}

func (h Handlers) ListEligible(c *gin.Context) {
	var q bulkEligibilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	out := bulkEligibility{Candidates: make([]domain.Candidate, 0)}
	for cand, err := range h.Eligibility.ListEligible(c.Request.Context(), q.Limit) {
		if err != nil {
			failWith(c, err, gin.H{"eligible": false})
			return
		}
		out.Candidates = append(out.Candidates, cand)
	}
	out.Count = len(out.Candidates)
	ok(c, http.StatusOK, out)
}

// --- Reporting ---

type summaryQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

func parseTime(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Invalid("%s must be RFC3339", name)
	}
	t = t.UTC()
	return &t, nil
}

// CallsSummary defaults to the last 7 days when from/to are omitted.
func (h Handlers) CallsSummary(c *gin.Context) {
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	from, err := parseTime("from", q.From)
	if err != nil {
		fail(c, err)
		return
	}
	to, err := parseTime("to", q.To)
	if err != nil {
		fail(c, err)
		return
	}
	if to == nil {
		now := h.now()
		to = &now
	}
	if from == nil {
		f := to.Add(-7 * 24 * time.Hour)
		from = &f
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		ProjectExternalID: c.Param("external_id"),
		Range:             reporting.TimeRange{From: *from, To: *to},
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}
