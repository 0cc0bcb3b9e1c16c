package http

import (
	"net/http"

	"foodbudget/internal/core"
	"foodbudget/internal/log"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.budget.Settings(r.Context())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(cfg).Write(w)
}

// handleSaveSettings overwrites both settings fields.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	cfg, err := parseSettings(p)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	saved, err := s.budget.SaveSettings(r.Context(), cfg)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().TriggerSettingsUpdated().JSON(saved).Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ref, err := parseDateParam(r.URL.Query(), s.budget.Today())
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}
	data, filename, err := s.budget.Report(r.Context(), ref)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}
	NewResponse().Attachment(filename, "application/json", data).Write(w)
}

type forecastResponse struct {
	Days     int               `json:"days"`
	Forecast []core.DailyMeals `json:"forecast"`
}

// handleForecast never fails on forecaster problems; it returns an empty
// list instead.
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	days, err := parseDaysParam(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}
	predicted := s.budget.Forecast(r.Context(), days)
	NewResponse().JSON(forecastResponse{Days: len(predicted), Forecast: predicted}).Write(w)
}

// weekResponse flattens services.WeekResult for the client.
type weekResponse struct {
	WeekStart core.Date       `json:"weekStart"`
	WeekEnd   core.Date       `json:"weekEnd"`
	View      core.WeeklyView `json:"view"`
	Anomalies []core.Anomaly  `json:"anomalies"`
	Settings  core.Settings   `json:"settings"`
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	ref, err := parseDateParam(r.URL.Query(), s.budget.Today())
	if err != nil {
		writeError(w, r, log.OpAggregate, err)
		return
	}
	res, err := s.budget.Week(r.Context(), ref)
	if err != nil {
		writeError(w, r, log.OpAggregate, err)
		return
	}
	NewResponse().JSON(weekResponse{
		WeekStart: res.Window.Start,
		WeekEnd:   res.Window.End,
		View:      res.View,
		Anomalies: res.Anomalies,
		Settings:  res.Settings,
	}).Write(w)
}
