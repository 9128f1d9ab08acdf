package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/researcher/internal/research"
)

// ResearchHandler exposes the job orchestrator. Ownership checks live in the
// service; every lookup is scoped to the authenticated user.
type ResearchHandler struct {
	Service *research.Service
}

func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("/start", h.start)
	g.GET("/jobs", h.jobs)
	g.GET("/status/:id", h.status)
	g.GET("/report/:id", h.report)
}

func (h *ResearchHandler) start(c echo.Context) error {
	var req StartResearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	id, err := h.Service.Submit(c.Request().Context(), c.Get("user_id").(string), req.Topic)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, StartResearchResponse{JobID: id})
}

func (h *ResearchHandler) jobs(c echo.Context) error {
	jobs, err := h.Service.ListJobs(c.Request().Context(), c.Get("user_id").(string))
	if err != nil {
		return err
	}
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, JobResponse{
			JobID:     j.ID,
			Topic:     j.Topic,
			Status:    j.Status.String(),
			CreatedAt: j.CreatedAt,
			UpdatedAt: j.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ResearchHandler) status(c echo.Context) error {
	st, err := h.Service.GetStatus(c.Request().Context(), c.Param("id"), c.Get("user_id").(string))
	if err != nil {
		return err
	}
	facts := make([]FactResponse, 0, len(st.Facts))
	for _, f := range st.Facts {
		facts = append(facts, FactResponse{Fact: f.Text, Source: f.Source, Timestamp: f.CapturedAt})
	}
	return c.JSON(http.StatusOK, StatusResponse{JobID: st.Job.ID, Status: st.Job.Status.String(), CollectedFacts: facts})
}

func (h *ResearchHandler) report(c echo.Context) error {
	rep, err := h.Service.GetReport(c.Request().Context(), c.Param("id"), c.Get("user_id").(string))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ReportResponse{
		JobID:     rep.JobID,
		Title:     rep.Title,
		Outline:   rep.Outline,
		Report:    rep.Body,
		Sources:   rep.Sources,
		WordCount: rep.WordCount,
		CreatedAt: rep.CreatedAt,
	})
}
