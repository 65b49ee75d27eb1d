// Package handler exposes the booking and reschedule services over HTTP.
// Handlers decode and validate the request, resolve the caller from the
// JWT claims and translate domain errors into status codes.
package handler

import (
	"errors"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/booking-engine/internal/apperror"
	"github.com/iliyamo/booking-engine/internal/model"
	"github.com/iliyamo/booking-engine/internal/service"
	"github.com/iliyamo/booking-engine/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so error fields match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// getUserID extracts the user_id set by JWTAuth and converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// actorFrom resolves the authenticated caller.
func actorFrom(c echo.Context) (service.Actor, error) {
	id, err := getUserID(c)
	if err != nil || id == 0 {
		return service.Actor{}, apperror.Unauthorized("missing or invalid identity")
	}
	var role model.Role
	switch r := c.Get("role").(type) {
	case model.Role:
		role = r
	case string:
		role = model.Role(strings.ToUpper(r))
	}
	switch role {
	case model.RoleCustomer, model.RoleOperator, model.RoleAdmin:
		return service.Actor{UserID: id, Role: role}, nil
	}
	return service.Actor{}, apperror.Unauthorized("missing or invalid role")
}

// writeError renders err as {"error": msg, "fields": [...]}. Unknown
// errors become a generic 500.
func writeError(c echo.Context, err error) error {
	ae := apperror.From(err)
	body := echo.Map{"error": ae.Message}
	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	return c.JSON(ae.Status, body)
}

// bindAndValidate decodes the JSON body into dst and runs its validate
// tags. Missing required fields are reported together.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.Validation("malformed request body")
	}
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Internal(err)
	}
	var missing, invalid []string
	for _, fe := range verrs {
		if strings.HasPrefix(fe.Tag(), "required") {
			missing = append(missing, topField(fe))
			continue
		}
		if f := topField(fe); !slices.Contains(invalid, f) {
			invalid = append(invalid, f)
		}
	}
	if len(missing) > 0 {
		return apperror.MissingFields(missing...)
	}
	return apperror.Validation("invalid value for "+strings.Join(invalid, ", "), invalid...)
}

// topField names the request body field an error belongs to, so
// "createBookingRequest.selectedAddons[1].price" reports selectedAddons.
func topField(fe validator.FieldError) string {
	_, rest, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Field()
	}
	if i := strings.IndexAny(rest, ".["); i >= 0 {
		return rest[:i]
	}
	return rest
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validation("invalid "+name, name)
	}
	return id, nil
}

// pageFrom reads ?limit=&offset=. Absent values fall back to the store
// defaults.
func pageFrom(c echo.Context) (store.Page, error) {
	var p store.Page
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		raw := c.QueryParam(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return store.Page{}, apperror.Validation("invalid "+name, name)
		}
		*dst = n
	}
	return p.Normalize(), nil
}

// parseDate reads an optional YYYY-MM-DD value; empty means absent.
func parseDate(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, apperror.Validation(field+" must be a YYYY-MM-DD date", field)
	}
	return &d, nil
}
