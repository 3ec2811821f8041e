package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/pkg/server/framework"
	svcframework "github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/verifier"
)

type VerifierRouter struct {
	service *verifier.Service
}

func NewVerifierRouter(s svcframework.Service) (*VerifierRouter, error) {
	if s == nil {
		return nil, errors.New("service cannot be nil")
	}
	service, ok := s.(*verifier.Service)
	if !ok {
		return nil, errors.New("could not create verifier router with service type: " + string(s.Type()))
	}
	return &VerifierRouter{service: service}, nil
}

// CreateProofRequest godoc
//
//	@Summary		Create a proof request
//	@Description	Publishes a presentation request for one of the configured presentation definitions
//	@Tags			VerifierAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body		verifier.CreateProofRequestRequest	true	"request body"
//	@Success		201		{object}	verifier.CreateProofRequestResponse
//	@Failure		400		{string}	string	"Bad request"
//	@Failure		502		{string}	string	"Upstream agent error"
//	@Router			/v1/verifier/proofs [put]
func (vr VerifierRouter) CreateProofRequest(c *gin.Context) error {
	var request verifier.CreateProofRequestRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		framework.RespondError(c, err)
		return nil
	}

	created, err := vr.service.CreateProofRequest(c, request)
	if err != nil {
		framework.RespondError(c, err)
		return nil
	}

	framework.Respond(c, created, http.StatusCreated)
	return nil
}
