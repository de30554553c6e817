// Package api exposes the intake subsystem over HTTP using Echo.
//
// Routes:
//
//	POST /v1/submissions              accept a submission (idempotent)
//	GET  /v1/submissions/:id          fetch a submission record
//	GET  /v1/jobs/:jobId              fetch job status
//	POST /v1/jobs/:jobId/cancel       cancel a live job
//	POST /v1/retries                  report a step failure
//	GET  /healthz                     store connectivity check
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/engine"
)

// API holds the HTTP handlers for the intake engine.
type API struct {
	eng *engine.Engine
}

// New creates an API over the given engine.
func New(eng *engine.Engine) *API {
	return &API{eng: eng}
}

// Register adds all intake routes to the Echo instance.
func (a *API) Register(e *echo.Echo) {
	e.GET("/healthz", a.health)

	v1 := e.Group("/v1")
	v1.POST("/submissions", a.createSubmission)
	v1.GET("/submissions/:submissionId", a.getSubmission)
	v1.GET("/jobs/:jobId", a.getJob)
	v1.POST("/jobs/:jobId/cancel", a.cancelJob)
	v1.POST("/retries", a.reportFailure)
}

// errorBody is the uniform error payload.
type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func errJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorBody{Error: msg})
}

// mapNotFound converts sentinel not-found errors to 404, everything else
// to 500.
func mapNotFound(c echo.Context, err error) error {
	if errors.Is(err, intake.ErrSubmissionNotFound) ||
		errors.Is(err, intake.ErrJobNotFound) {
		return errJSON(c, http.StatusNotFound, err.Error())
	}

	return errJSON(c, http.StatusInternalServerError, err.Error())
}
