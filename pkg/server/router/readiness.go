package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tantan-solutions/vc-exchange-service/pkg/server/framework"
	svcframework "github.com/tantan-solutions/vc-exchange-service/pkg/service/framework"
)

type readiness struct {
	getter serviceStatusGetter
}

// serviceStatusGetter abstracts the service registry, so tests can feed the
// handler a fixed set of services.
type serviceStatusGetter interface {
	GetServices() []svcframework.Service
}

type GetReadinessResponse struct {
	Status          svcframework.Status                       `json:"status"`
	ServiceStatuses map[svcframework.Type]svcframework.Status `json:"serviceStatuses"`
}

// Readiness godoc
//
//	@Summary		Readiness
//	@Description	Readiness reports the status of every registered service, 503 when any is not ready
//	@Tags			HealthCheck
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	GetReadinessResponse
//	@Failure		503	{object}	GetReadinessResponse
//	@Router			/readiness [get]
func Readiness(getter serviceStatusGetter) framework.Handler {
	return readiness{getter: getter}.ready
}

func (r readiness) ready(c *gin.Context) error {
	services := r.getter.GetServices()
	statuses := make(map[svcframework.Type]svcframework.Status, len(services))

	allReady := true
	for _, s := range services {
		status := s.Status()
		statuses[s.Type()] = status
		if !status.IsReady() {
			logrus.Warnf("service %s is not ready: %s", s.Type(), status.Message)
			allReady = false
		}
	}

	response := GetReadinessResponse{
		Status:          svcframework.Status{Status: svcframework.StatusReady},
		ServiceStatuses: statuses,
	}
	statusCode := http.StatusOK
	if !allReady {
		response.Status = svcframework.Status{
			Status:  svcframework.StatusNotReady,
			Message: "one or more services are not ready",
		}
		statusCode = http.StatusServiceUnavailable
	}

	framework.Respond(c, response, statusCode)
	return nil
}
