package echoapi

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/telatku/telatku/core/user"
)

const contextObjectKey = "object"

// roleMiddleware lets through the users whose role is allowed in area.
// The role is looked up once per request, whatever the number of guards.
func roleMiddleware(lookup user.RoleLookup, area user.Area) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			gate, err := getContextGate(ctx, lookup)
			if err != nil {
				return err
			}
			access, err := gate.Check(ctx.Request().Context(), area)
			if err != nil {
				return errors.Wrap(err, "looking up role")
			}

			switch access {
			case user.AccessAllowed:
				return next(ctx)
			case user.AccessNoRole:
				return errHttpNoRole
			default:
				return errHttpForbidden
			}
		}
	}
}

// objectMiddleware loads the object of the `:id` path param into the context under "object".
// notFound is the sentinel error of find meaning 404.
func objectMiddleware(find func(ctx context.Context, id string) (interface{}, error), notFound error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			obj, err := find(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == notFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding object by ID")
			}
			ctx.Set(contextObjectKey, obj)
			return next(ctx)
		}
	}
}

func contextObject[T any](ctx echo.Context) (T, error) {
	obj, ok := ctx.Get(contextObjectKey).(T)
	if !ok {
		return obj, errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return obj, nil
}
