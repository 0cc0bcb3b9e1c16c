package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"foodbudget/internal/core"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		JSON(map[string]int{"total": 42}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if strings.TrimSpace(w.Body.String()) != `{"total":42}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		TriggerExpenseCreated(core.NewDate(2024, 3, 6)).
		TriggerSettingsUpdated().
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(trigger), &parsed); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}

	expectedParts := []string{
		`"expense:created"`,
		`"settings:updated"`,
		`"date":"2024-03-06"`,
		`"weekStart":"2024-03-04"`,
	}
	for _, part := range expectedParts {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusNoContent).
		TriggerExpenseDeleted("abc").
		Write(w)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), `"id":"abc"`) {
		t.Errorf("delete trigger missing id: %s", w.Header().Get("HX-Trigger"))
	}
}

func TestResponseBuilder_Attachment(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Attachment("expense-report-2024-03.json", "application/json", []byte(`{"total":1}`)).
		Write(w)

	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="expense-report-2024-03.json"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if w.Body.String() != `{"total":1}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Header("X-Custom", "value").
		Status(http.StatusAccepted).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusAccepted {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *ResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			builder:    BadRequestError("Invalid input"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid input"}`,
		},
		{
			name:       "unprocessable entity",
			builder:    UnprocessableEntityError("Validation failed"),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"error":"Validation failed"}`,
		},
		{
			name:       "internal server error",
			builder:    InternalServerError("Something broke"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Something broke"}`,
		},
		{
			name:       "not found",
			builder:    NotFoundError("Resource not found"),
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"Resource not found"}`,
		},
		{
			name:       "too many requests",
			builder:    TooManyRequestsError(),
			wantStatus: http.StatusTooManyRequests,
			wantBody:   `{"error":"rate limit exceeded, please try again later"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if strings.TrimSpace(w.Body.String()) != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestErrorResponse_EscapesForJSON(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError(`bad "quote" <tag>`).Write(w)

	var body ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not valid JSON: %v", err)
	}
	if body.Error != `bad "quote" <tag>` {
		t.Errorf("Error = %q", body.Error)
	}
	if strings.Contains(w.Body.String(), "<tag>") {
		t.Error("angle brackets should be escaped in JSON output")
	}
}
