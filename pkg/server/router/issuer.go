package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/pkg/server/framework"
	svcframework "github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/issuer"
)

// IssuerRouter exposes issuance offer creation and session tracking.
type IssuerRouter struct {
	service *issuer.Service
}

func NewIssuerRouter(s svcframework.Service) (*IssuerRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	service, ok := s.(*issuer.Service)
	if !ok {
		return nil, errors.New("could not create issuer router with service type: " + string(s.Type()))
	}
	return &IssuerRouter{service: service}, nil
}

// CreateIssuanceOffer godoc
//
//	@Summary		Create an issuance offer
//	@Description	Creates a credential offer for one of the configured credential types and begins tracking its issuance session
//	@Tags			IssuerAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		issuer.CreateIssuanceOfferRequest	true	"request body"
//	@Success		201		{object}	issuer.CreateIssuanceOfferResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		502		{string}	string	"Offer creation failed"
//	@Router			/v1/issuer/offers [put]
func (ir IssuerRouter) CreateIssuanceOffer(c *gin.Context) error {
	var request issuer.CreateIssuanceOfferRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		framework.RespondError(c, err)
		return nil
	}

	offer, err := ir.service.CreateIssuanceOffer(c, request)
	if err != nil {
		framework.RespondError(c, errors.Wrap(err, "could not create issuance offer"))
		return nil
	}

	framework.Respond(c, offer, http.StatusCreated)
	return nil
}

// GetIssuanceSession godoc
//
//	@Summary		Get an issuance session
//	@Description	Returns the current state of a single issuance session
//	@Tags			IssuerAPI
//	@Produce		json
//	@Param			id	path		string	true	"ID"
//	@Success		200	{object}	issuer.GetIssuanceSessionResponse
//	@Failure		404	{string}	string	"Not found"
//	@Router			/v1/issuer/sessions/{id} [get]
func (ir IssuerRouter) GetIssuanceSession(c *gin.Context) error {
	id := framework.GetParam(c, IDParam)
	if id == nil {
		framework.RespondError(c, &framework.SafeError{
			Err:        errors.New("cannot get issuance session without an id"),
			StatusCode: http.StatusBadRequest,
		})
		return nil
	}

	session, err := ir.service.GetIssuanceSession(c, *id)
	if err != nil {
		framework.RespondError(c, err)
		return nil
	}

	framework.Respond(c, session, http.StatusOK)
	return nil
}

// ListIssuanceSessions godoc
//
//	@Summary		List issuance sessions
//	@Description	Returns every tracked issuance session, terminal ones included
//	@Tags			IssuerAPI
//	@Produce		json
//	@Success		200	{object}	issuer.ListIssuanceSessionsResponse
//	@Router			/v1/issuer/sessions [get]
func (ir IssuerRouter) ListIssuanceSessions(c *gin.Context) error {
	sessions, err := ir.service.ListIssuanceSessions(c)
	if err != nil {
		framework.RespondError(c, err)
		return nil
	}

	framework.Respond(c, sessions, http.StatusOK)
	return nil
}
