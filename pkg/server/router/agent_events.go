package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/pkg/server/framework"
	"github.com/tantan-solutions/vc-exchange-service/pkg/service/agent"
)

// AgentEventsRouter ingests session state webhooks pushed by the agent and
// publishes them onto the in-process event bus.
type AgentEventsRouter struct {
	publisher agent.SessionEventPublisher
}

func NewAgentEventsRouter(publisher agent.SessionEventPublisher) (*AgentEventsRouter, error) {
	if publisher == nil {
		return nil, errors.New("event publisher cannot be nil")
	}
	return &AgentEventsRouter{publisher: publisher}, nil
}

type PublishSessionEventRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	State     string `json:"state" validate:"required"`
}

// PublishSessionEvent godoc
//
//	@Summary		Publish a session state event
//	@Description	Accepts a session state change pushed by the credential agent
//	@Tags			AgentAPI
//	@Accept			json
//	@Produce		json
//	@Param			request	body	PublishSessionEventRequest	true	"request body"
//	@Success		204
//	@Failure		400	{string}	string	"Bad request"
//	@Router			/v1/agent/events [post]
func (ar AgentEventsRouter) PublishSessionEvent(c *gin.Context) error {
	var request PublishSessionEventRequest
	if err := framework.Decode(c.Request, &request); err != nil {
		framework.RespondError(c, err)
		return nil
	}

	ar.publisher.Publish(agent.SessionStateChangedEvent{
		SessionID: request.SessionID,
		State:     agent.SessionState(request.State),
	})

	framework.Respond(c, nil, http.StatusNoContent)
	return nil
}
