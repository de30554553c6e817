package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mwerk/intake/retry"
)

// reportFailure feeds an external step failure signal into the retry
// coordinator. Used by out-of-process step executors; the in-process
// runner reports failures directly.
func (a *API) reportFailure(c echo.Context) error {
	var sig retry.Signal
	if err := c.Bind(&sig); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if sig.JobID.IsNil() {
		return errJSON(c, http.StatusBadRequest, "jobId is required")
	}

	if err := a.eng.HandleFailure(c.Request().Context(), sig); err != nil {
		return mapNotFound(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
