package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/pipeline"
	"github.com/mwerk/intake/submission"
)

// SubmissionResponse is the payload returned for accepted submissions.
// Deduplicated responses carry the IDs and current job status of the
// original submission, so a client retrying a request sees where its
// work stands without a second poll.
type SubmissionResponse struct {
	SubmissionID   id.SubmissionID `json:"submissionId"`
	JobID          id.JobID        `json:"jobId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Status         string          `json:"status"`
	Deduplicated   bool            `json:"deduplicated"`
	Message        string          `json:"message"`
}

func (a *API) createSubmission(c echo.Context) error {
	var req submission.Request
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}

	res, err := a.eng.Submit(c.Request().Context(), req)

	var verr *submission.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, errorBody{
			Error:  verr.Error(),
			Fields: verr.Fields,
		})
	}
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err.Error())
	}

	resp := SubmissionResponse{
		SubmissionID:   res.SubmissionID,
		JobID:          res.JobID,
		IdempotencyKey: res.IdempotencyKey,
		Status:         string(pipeline.JobPending),
		Deduplicated:   res.Deduplicated,
		Message:        "submission accepted",
	}

	if res.Deduplicated {
		// The original job may have progressed; report where it stands.
		if st, serr := a.eng.JobStatus(c.Request().Context(), res.JobID); serr == nil {
			resp.Status = string(st.State)
		}
		resp.Message = "submission already exists"
		return c.JSON(http.StatusOK, resp)
	}

	return c.JSON(http.StatusCreated, resp)
}

func (a *API) getSubmission(c echo.Context) error {
	subID, err := id.ParseSubmissionID(c.Param("submissionId"))
	if err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid submission ID")
	}

	sub, err := a.eng.Submissions().Get(c.Request().Context(), subID)
	if err != nil {
		return mapNotFound(c, err)
	}

	return c.JSON(http.StatusOK, sub)
}
