package store_client

import (
	"errors"
	"reflect"
	"strings"

	problem "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/problem"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"
)

// ErrorHook renders every handler error as application/problem+json.
func ErrorHook(c *gin.Context, err error) (int, interface{}) {
	// 1) Bind/validate errors → 400 met correcte invalidParams
	var be tonic.BindError
	if errors.As(err, &be) || isValidationErr(err) {
		invalids := invalidParamsFromBinding(err, models.SourcePost{})
		apiErr := problem.NewBadRequest("Ongeldige invoer", invalids...)
		c.Header("Content-Type", "application/problem+json")
		return apiErr.Status, apiErr
	}

	// 2) Eigen APIError → pass-through
	var apiErr problem.APIError
	if errors.As(err, &apiErr) {
		c.Header("Content-Type", "application/problem+json")
		return apiErr.Status, apiErr
	}

	// 3) Alles anders → 500
	internal := problem.NewInternalServerError(err.Error())
	c.Header("Content-Type", "application/problem+json")
	return internal.Status, internal
}

func invalidParamsFromBinding(err error, sample any) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	var be tonic.BindError
	if errors.As(err, &be) {
		verrs = be.ValidationErrors()
	}
	if verrs == nil && !errors.As(err, &verrs) {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		// StructField -> json tag
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{
			Name:   name,
			Reason: humanReason(fe),
		})
	}
	return out
}

func humanReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is verplicht"
	case "url":
		return "Moet een geldige URL zijn (bijv. https://…)"
	default:
		return fe.Error()
	}
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}
