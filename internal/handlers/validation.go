package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/response"
	"github.com/charlesng35/opsdash/pkg/validator"
)

const invalidPayload = "invalid request payload"

// ruleMessages renders a failed rule. %[1]s is the field, %[2]s the rule
// parameter.
var ruleMessages = map[string]string{
	"required":          "%[1]s is required",
	"max":               "%[1]s must be at most %[2]s characters",
	"min":               "%[1]s must be at least %[2]s characters",
	"email":             "%[1]s must be a valid email address",
	"uuid4":             "%[1]s must be a valid UUID",
	"role":              "%[1]s must be leader or member",
	"notification_type": "%[1]s must be one of info, success, warning, error",
}

// bindAndValidate decodes the JSON body into dest and checks its validate
// tags. On failure it writes a 400 and returns false.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, apperrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := validator.ValidateStruct(dest); err != nil {
		response.Error(c, apperrors.NewBadRequest(describeValidation(err)))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return invalidPayload
	}

	parts := make([]string, len(failures))
	for i, f := range failures {
		field := fieldLabel(f.Field)
		if format, ok := ruleMessages[f.Tag]; ok {
			parts[i] = fmt.Sprintf(format, field, f.Param)
			continue
		}
		rule := f.Tag
		if f.Param != "" {
			rule += "=" + f.Param
		}
		parts[i] = field + " failed validation: " + rule
	}
	return strings.Join(parts, "; ")
}

// fieldLabel turns a json field name like reference_id into "reference id".
func fieldLabel(name string) string {
	if name == "" {
		return "field"
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}

// queryInt reads an integer query parameter, falling back on absence or
// garbage.
func queryInt(c *gin.Context, key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return parsed
}
