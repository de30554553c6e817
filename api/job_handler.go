package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
)

func (a *API) getJob(c echo.Context) error {
	jobID, err := id.ParseJobID(c.Param("jobId"))
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid job ID")
	}

	st, err := a.eng.JobStatus(c.Request().Context(), jobID)
	if err != nil {
		return mapNotFound(c, err)
	}

	return c.JSON(http.StatusOK, st)
}

// CancelRequest optionally carries the cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

func (a *API) cancelJob(c echo.Context) error {
	jobID, err := id.ParseJobID(c.Param("jobId"))
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid job ID")
	}

	var req CancelRequest
	// The body is optional; a bind failure just means no reason given.
	_ = c.Bind(&req)

	err = a.eng.CancelJob(c.Request().Context(), jobID, req.Reason)
	if errors.Is(err, intake.ErrInvalidTransition) {
		return errJSON(c, http.StatusConflict, err.Error())
	}
	if err != nil {
		return mapNotFound(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
