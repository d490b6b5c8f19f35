package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	validator "gopkg.in/go-playground/validator.v9"
)

var validate = validator.New()

// Validate runs validation on the passed in struct using its validate tags
func Validate(obj any) error {
	return validate.Struct(obj)
}

// DecodeAndValidateJSON reads the body of the passed in request, unmarshals it into envelope and validates it
func DecodeAndValidateJSON(envelope any, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.Wrap(err, "unable to read request body")
	}
	return UnmarshalAndValidate(body, envelope)
}

// UnmarshalAndValidate unmarshals the passed in body into envelope and validates it
func UnmarshalAndValidate(body []byte, envelope any) error {
	if err := json.Unmarshal(body, envelope); err != nil {
		return fmt.Errorf("unable to parse request JSON: %s", err)
	}
	if err := validate.Struct(envelope); err != nil {
		return fmt.Errorf("request JSON doesn't match required schema: %s", err)
	}
	return nil
}
