package common

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GenericEchoValidator validates bound request structs by their `validate` tags
type GenericEchoValidator struct {
	once      sync.Once
	validator *validator.Validate
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	gv.once.Do(func() {
		gv.validator = validator.New()
	})
	if err := gv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request: %v", err))
	}
	return nil
}

// BindAndValidate binds path and query parameters into req and validates it
func BindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}
