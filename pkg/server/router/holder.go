package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/pkg/server/framework"
	svcframework "github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/holder"
)

// HolderRouter exposes the wallet side: resolving offers, requesting
// credentials, and the single-use proof request bridge.
type HolderRouter struct {
	service *holder.Service
}

func NewHolderRouter(s svcframework.Service) (*HolderRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	service, ok := s.(*holder.Service)
	if !ok {
		return nil, errors.New("could not create holder router with service type: " + string(s.Type()))
	}
	return &HolderRouter{service: service}, nil
}

// ResolveCredentialOffer godoc
//
//	@Summary		Resolve a credential offer
//	@Description	Resolves an offer payload into issuer metadata and the credential ids available under it
//	@Tags			HolderAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		holder.ResolveCredentialOfferRequest	true	"request body"
//	@Success		200		{object}	holder.ResolveCredentialOfferResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Router			/v1/holder/offers/resolve [put]
func (hr HolderRouter) ResolveCredentialOffer(c *gin.Context) error {
	var request holder.ResolveCredentialOfferRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		framework.RespondError(c, err)
		return nil
	}

	resolved, err := hr.service.ResolveCredentialOffer(c, request)
	if err != nil {
		framework.RespondError(c, err)
		return nil
	}

	framework.Respond(c, resolved, http.StatusOK)
	return nil
}

// RequestCredentials godoc
//
//	@Summary		Request credentials
//	@Description	Exchanges a resolved offer for the offered credentials and returns them in normalized form
//	@Tags			HolderAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		holder.RequestCredentialsRequest	true	"request body"
//	@Success		200		{object}	holder.RequestCredentialsResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		502		{string}	string	"Upstream agent error"
//	@Router			/v1/holder/credentials [put]
func (hr HolderRouter) RequestCredentials(c *gin.Context) error {
	var request holder.RequestCredentialsRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		framework.RespondError(c, err)
		return nil
	}

	credentials, err := hr.service.RequestCredentials(c, request)
	if err != nil {
		framework.RespondError(c, err)
		return nil
	}

	framework.Respond(c, credentials, http.StatusOK)
	return nil
}

// ResolveProofRequest godoc
//
//	@Summary		Resolve a proof request
//	@Description	Resolves a presentation request URI and mints a single-use id to accept it with
//	@Tags			HolderAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		holder.ResolveProofRequestRequest	true	"request body"
//	@Success		200		{object}	holder.ResolveProofRequestResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Router			/v1/holder/proofs/resolve [put]
func (hr HolderRouter) ResolveProofRequest(c *gin.Context) error {
	var request holder.ResolveProofRequestRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		framework.RespondError(c, err)
		return nil
	}

	resolved, err := hr.service.ResolveProofRequest(c, request)
	if err != nil {
		framework.RespondError(c, err)
		return nil
	}

	framework.Respond(c, resolved, http.StatusOK)
	return nil
}

// AcceptProofRequest godoc
//
//	@Summary		Accept a proof request
//	@Description	Claims a resolved proof request and presents the matching credentials; each id is usable exactly once
//	@Tags			HolderAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		holder.AcceptProofRequestRequest	true	"request body"
//	@Success		200		{object}	holder.AcceptProofRequestResponse
//	@Failure		404		{string}	string	"Not found or already used"
//	@Router			/v1/holder/proofs/accept [put]
func (hr HolderRouter) AcceptProofRequest(c *gin.Context) error {
	var request holder.AcceptProofRequestRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		framework.RespondError(c, err)
		return nil
	}

	accepted, err := hr.service.AcceptProofRequest(c, request)
	if err != nil {
		framework.RespondError(c, err)
		return nil
	}

	framework.Respond(c, accepted, http.StatusOK)
	return nil
}
