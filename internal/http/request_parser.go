// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bodies may be JSON or form encoded; both end up as string fields that the
// domain parsers validate.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"foodbudget/internal/core"
	"foodbudget/internal/forecast"
)

// maxBodyBytes bounds request bodies; expense payloads are tiny.
const maxBodyBytes = 64 << 10

// errMalformedBody marks bodies that could not be decoded at all.
var errMalformedBody = errors.New("malformed request body")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("%w: body exceeds %d bytes", errMalformedBody, maxBodyBytes)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") || strings.Contains(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = fmt.Errorf("%w: %v", errMalformedBody, err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errMalformedBody, p.err)
	}
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Has reports whether key was sent, even with an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		v, ok := p.jsonData[key]
		return ok && v != nil
	}
	if p.formData != nil {
		return p.formData.Has(key)
	}
	return false
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// parseBody reads and decodes the request body.
func parseBody(r *http.Request) (*RequestBodyParser, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return nil, err
	}
	return p, nil
}

// parseDateParam reads ?date=YYYY-MM-DD, falling back to today when absent.
func parseDateParam(query url.Values, today core.Date) (core.Date, error) {
	v := strings.TrimSpace(query.Get("date"))
	if v == "" {
		return today, nil
	}
	return core.ParseDate(v)
}

// parseDaysParam reads ?days=N, at most forecast.MaxDays. Absent or zero
// means the forecaster's default.
func parseDaysParam(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("days"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > forecast.MaxDays {
		return 0, fmt.Errorf("%w: days must be an integer in 0..%d", errInvalidParam, forecast.MaxDays)
	}
	return n, nil
}

var errInvalidParam = errors.New("invalid parameter")

// expenseInput is the validated shape of a create request.
type expenseInput struct {
	Date   core.Date
	Meal   core.Meal
	Amount int64
}

// parseExpenseInput reads date, meal and amount. A missing date means today.
func parseExpenseInput(p *RequestBodyParser, today core.Date) (expenseInput, error) {
	var in expenseInput
	var err error

	in.Date = today
	if v := p.Get("date"); v != "" {
		if in.Date, err = core.ParseDate(v); err != nil {
			return expenseInput{}, err
		}
	}
	if in.Meal, err = core.ParseMeal(p.Get("meal")); err != nil {
		return expenseInput{}, err
	}
	if in.Amount, err = core.ParseAmount(p.Get("amount")); err != nil {
		return expenseInput{}, err
	}
	return in, nil
}

// parseExpensePatch reads only the fields present in the body.
func parseExpensePatch(p *RequestBodyParser) (core.ExpensePatch, error) {
	var patch core.ExpensePatch
	if p.Has("date") {
		d, err := core.ParseDate(p.Get("date"))
		if err != nil {
			return core.ExpensePatch{}, err
		}
		patch.Date = &d
	}
	if p.Has("meal") {
		m, err := core.ParseMeal(p.Get("meal"))
		if err != nil {
			return core.ExpensePatch{}, err
		}
		patch.Meal = &m
	}
	if p.Has("amount") {
		a, err := core.ParseAmount(p.Get("amount"))
		if err != nil {
			return core.ExpensePatch{}, err
		}
		patch.Amount = &a
	}
	return patch, nil
}

// parseSettings reads a full settings overwrite. Both fields are required.
func parseSettings(p *RequestBodyParser) (core.Settings, error) {
	people, err := strconv.Atoi(p.Get("numberOfPeople"))
	if err != nil {
		return core.Settings{}, fmt.Errorf("%w: numberOfPeople must be an integer", core.ErrInvalidSettings)
	}
	limit, err := strconv.ParseInt(p.Get("dailyLimitPerPerson"), 10, 64)
	if err != nil {
		return core.Settings{}, fmt.Errorf("%w: dailyLimitPerPerson must be an integer", core.ErrInvalidSettings)
	}
	s := core.Settings{NumberOfPeople: people, DailyLimitPerPerson: limit}
	return s, s.Validate()
}

// credentials is the signup/login body.
type credentials struct {
	Email       string
	Password    string
	DisplayName string
}

func parseCredentials(p *RequestBodyParser) credentials {
	return credentials{
		Email:       p.Get("email"),
		Password:    stringRaw(p, "password"),
		DisplayName: p.Get("displayName"),
	}
}

// stringRaw returns a field without trimming, for passwords.
func stringRaw(p *RequestBodyParser, key string) string {
	if p.jsonData != nil {
		return stringValue(p.jsonData[key])
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}
