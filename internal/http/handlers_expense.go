package http

import (
	"net/http"
	"strings"

	"foodbudget/internal/log"
	authmw "foodbudget/internal/middleware/auth"
	"foodbudget/internal/services"
)

// handleListExpenses returns the flat record list of the week containing
// ?date (default today).
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	ref, err := parseDateParam(r.URL.Query(), s.budget.Today())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	listing, err := s.budget.ListWeek(r.Context(), ref)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(listing).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in, err := parseExpenseInput(p, s.budget.Today())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	ctx := r.Context()
	e, err := s.budget.CreateExpense(ctx, services.NewExpense{
		Date:      in.Date,
		Meal:      in.Meal,
		Amount:    in.Amount,
		UserID:    authmw.GetUserID(ctx),
		UserEmail: authmw.GetEmail(ctx),
	})
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+e.ID).
		TriggerExpenseCreated(e.Date).
		JSON(e).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	p, err := parseBody(r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	patch, err := parseExpensePatch(p)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	e, err := s.budget.UpdateExpense(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().TriggerExpenseUpdated(e.Date).JSON(e).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := s.budget.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).TriggerExpenseDeleted(id).Write(w)
}
