package inbound

import (
	"github.com/shandysiswandi/mailmerge/internal/pkg/router"
)

func RegisterHTTPEndpoint(r *router.Router, uc uc) {
	end := &HTTPEndpoint{uc: uc}

	r.POST("/api/v1/mailmerge/blasts", end.SendBlast)
	r.POST("/api/v1/mailmerge/validations", end.ValidateUpload)
	r.POST("/api/v1/mailmerge/schedules", end.ScheduleBlast)
	r.DELETE("/api/v1/mailmerge/schedules/:id", end.CancelSchedule)
}
