package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"datalabel-backend/internal/apperrors"
	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/middleware"
	"datalabel-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// ConfigureBinding makes JSON binding reject unknown fields and report json
// field names in validation errors
func ConfigureBinding() {
	gin.EnableJsonDecoderDisallowUnknownFields()
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
}

// respondWithError unified error response function
func respondWithError(c *gin.Context, statusCode int, errorType, message string, details interface{}) {
	response := gin.H{
		"success": false,
		"error":   errorType,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.JSON(statusCode, response)
}

// respondWithAppError maps a kinded error onto its HTTP status. Internal
// errors are logged and never echoed.
func respondWithAppError(c *gin.Context, logger *logrus.Logger, operation string, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)

	var appErr *apperrors.Error
	message := err.Error()
	var details interface{}
	if errors.As(err, &appErr) {
		message = appErr.Message
		if len(appErr.Fields) > 0 {
			details = appErr.Fields
		}
	}

	fields := logrus.Fields{
		"operation": operation,
		"path":      c.Request.URL.Path,
		"method":    c.Request.Method,
		"kind":      kind,
		"error":     err.Error(),
	}
	if status >= http.StatusInternalServerError {
		logger.WithFields(fields).Error("❌ Request failed")
		if status == http.StatusInternalServerError {
			message = "internal server error"
		}
	} else {
		logger.WithFields(fields).Debug("Request rejected")
	}
	respondWithError(c, status, string(kind), message, details)
}

// bindJSON binds the body into req and answers 400 with per-field details on failure
func bindJSON(c *gin.Context, req interface{}) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	respondWithBindError(c, err)
	return false
}

// respondWithBindError answers 400 ValidationError for a failed JSON bind
func respondWithBindError(c *gin.Context, err error) {
	if field, ok := unknownField(err); ok {
		respondWithError(c, http.StatusBadRequest, string(apperrors.KindValidation),
			fmt.Sprintf("unknown field %q", field), map[string]string{field: "unknown field"})
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fieldPath(fe)] = validationMessage(fe)
		}
		respondWithError(c, http.StatusBadRequest, string(apperrors.KindValidation), "invalid request body", fields)
		return
	}
	respondWithError(c, http.StatusBadRequest, string(apperrors.KindValidation), "malformed request body: "+err.Error(), nil)
}

// unknownField name from the decoder's `json: unknown field "x"` error
func unknownField(err error) (string, bool) {
	const prefix = "json: unknown field "
	msg := err.Error()
	i := strings.Index(msg, prefix)
	if i < 0 {
		return "", false
	}
	name, uerr := strconv.Unquote(strings.TrimSpace(msg[i+len(prefix):]))
	if uerr != nil {
		return "", false
	}
	return name, true
}

// fieldPath namespace without the request struct name
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return "at most " + fe.Param()
	case "min":
		return "at least " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "numeric":
		return "must be numeric"
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// currentPrincipal principal set by the session middleware
func currentPrincipal(c *gin.Context) auth.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

// pagination limit/offset query parameters
func pagination(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	limit = utils.ClampLimit(limit, defaultLimit, maxLimit)
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
