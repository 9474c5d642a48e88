// Package handlers provides the HTTP handlers of the PEDSA API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pedsa/pedsa/pkg/api/middleware"
	"github.com/pedsa/pedsa/pkg/api/response"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/memory"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// decode reads a JSON body into dst and validates it. On failure the
// error response has been written and false is returned.
func decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			response.Error(w, http.StatusRequestEntityTooLarge, response.ErrCodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), requestID(r))
		case errors.Is(err, io.EOF):
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "request body is empty", requestID(r))
		default:
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body: "+err.Error(), requestID(r))
		}
		return false
	}

	if err := v.Struct(dst); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), requestID(r))
		return
	}

	details := make(map[string]interface{}, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = fieldMessage(fe)
	}
	response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
		"request validation failed", details, requestID(r))
}

// fieldPath drops the root struct name: "entries[2].content".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "nefield":
		return "must differ from " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

// writeHubError maps hub errors onto the error envelope. Unexpected
// errors are logged and reported without their text.
func writeHubError(w http.ResponseWriter, r *http.Request, log logger.Logger, op string, err error) {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, err.Error(), requestID(r))
	case errors.Is(err, memory.ErrInvalidEntryID),
		errors.Is(err, memory.ErrEmptyContent),
		errors.Is(err, memory.ErrInvalidRelation),
		errors.Is(err, memory.ErrInvalidWeight),
		errors.Is(err, memory.ErrInvalidTopK):
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), requestID(r))
	case errors.Is(err, memory.ErrHubNotStarted):
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, err.Error(), requestID(r))
	default:
		status := response.HTTPStatusFromError(err)
		log.ErrorContext(r.Context(), "request failed", "op", op, "status", status, "error", err)
		response.Error(w, status, response.ErrorCodeFromStatus(status), op+" failed", requestID(r))
	}
}
