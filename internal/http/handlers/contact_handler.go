package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-customer-hub/internal/services"
)

// UpdateContactRequest edits the manual fields of a contact. Omitted fields
// are left alone; an empty owner clears the assignment.
type UpdateContactRequest struct {
	Remark *string `json:"remark" example:"张工 华东 运营商"`
	Owner  *string `json:"owner" example:"sales-li"`
}

// PromoteRequest turns a contact into a customer.
type PromoteRequest struct {
	ContactID string `json:"contact_id" binding:"required" example:"3f2a9c1e-7b4d-4e1a-9c55-0d7c9a1b2e3f"`
	Name      string `json:"name" binding:"required" example:"张三"`
	Region    string `json:"region" example:"华东"`
	Level     string `json:"level" example:"A"`
	Owner     string `json:"owner" example:"sales-li"`
}

// GetContact godoc
// @ID          getContact
// @Summary     Get a contact
// @Tags        Contacts
// @Produce     json
// @Param       id   path  string  true  "Contact ID"
// @Success     200  {object}  domain.Contact
// @Failure     404  {object}  handlers.ErrorResponse "Contact not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /contacts/{id} [get]
func (h *Handlers) GetContact(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	ct, err := h.svc.GetContact(c.Request.Context(), id)
	if err != nil {
		failFor(c, err, ErrCodeContactFailed)
		return
	}
	ok(c, http.StatusOK, ct)
}

// UpdateContact godoc
// @ID          updateContact
// @Summary     Edit a contact
// @Description Updates remark and/or owner. At least one field is required.
// @Tags        Contacts
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Contact ID"
// @Param       body  body  handlers.UpdateContactRequest  true  "Fields to change"
// @Success     200  {object}  domain.Contact
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Contact not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /contacts/{id} [patch]
func (h *Handlers) UpdateContact(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ct, err := h.svc.UpdateContact(c.Request.Context(), id, req.Remark, req.Owner)
	if err != nil {
		failFor(c, err, ErrCodeContactFailed)
		return
	}
	ok(c, http.StatusOK, ct)
}

// PromoteContact godoc
// @ID          promoteContact
// @Summary     Promote a contact to customer
// @Description Allocates the next customer code (K0001-region-name-level-source), sets confidence to 100 and moves the current thread to WHITE.
// @Tags        Contacts
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.PromoteRequest  true  "Customer profile"
// @Success     201  {object}  services.PromoteResult
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Contact not found"
// @Failure     409  {object}  handlers.ErrorResponse "Already promoted"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /contacts/promote [post]
func (h *Handlers) PromoteContact(c *gin.Context) {
	var req PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ContactID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact_id and name required")
		return
	}
	res, err := h.svc.PromoteToCustomer(c.Request.Context(), strings.TrimSpace(req.ContactID), services.PromoteInput{
		Name:   req.Name,
		Region: req.Region,
		Level:  req.Level,
		Owner:  req.Owner,
	})
	if err != nil {
		failFor(c, err, ErrCodePromoteFailed)
		return
	}
	ok(c, http.StatusCreated, res)
}
