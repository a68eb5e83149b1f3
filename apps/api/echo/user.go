package echoapi

import (
	"context"
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/user"
)

var userOrderingFields = []string{"full_name", "email", "is_active", "created_at", "last_login"}

type userApi struct {
	conf       *core.Config
	svc        user.Service
	classSvc   class.Service
	validate   *validator.Validate
	translator ut.Translator
	logger     core.Logger
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, guards guards, deps Deps) {
	api := userApi{
		conf:       deps.Conf,
		svc:        deps.UserSvc,
		classSvc:   deps.ClassSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
	}

	// un-authed endpoints
	ag := g.Group("/auth")
	ag.POST("/signup", api.signUp)
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)
	ag.POST("/token-refresh", api.refreshToken, jwt)

	// authed endpoints
	mg := g.Group("/me", jwt)
	mg.GET("", api.me)
	mg.GET("/role", api.myRole)

	// admin endpoints
	ug := g.Group("/users", jwt, guards.admin)
	ug.GET("", api.query)
	ug.GET("/roles", api.queryRoles)

	dg := ug.Group("/:id", objectMiddleware(func(ctx context.Context, id string) (interface{}, error) {
		return api.svc.GetByID(ctx, id)
	}, user.ErrNotFound))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.PUT("/role", api.assignRole)
	dg.DELETE("/role", api.revokeRole)
	dg.PUT("/active", api.setActive)
}

// Handlers

func (api *userApi) signUp(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}
	if err := api.checkClass(ctx.Request().Context(), data.ClassID); err != nil {
		return err
	}

	usr, err := api.svc.SignUp(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// checkClass reports an unknown homeroom class as a validation error.
func (api *userApi) checkClass(ctx context.Context, classID string) error {
	if classID == "" || classID == "-" {
		return nil
	}
	if _, err := api.classSvc.GetByID(ctx, classID); err != nil {
		if err == class.ErrNotFound {
			return core.NewFieldValidationError("class_id", err)
		}
		return errors.Wrap(err, "finding class by ID")
	}
	return nil
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, usr, err := authenticate(ctx.Request().Context(), api.conf, data.Email, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if !(err == nil || err == user.ErrNotFound || err == user.ErrAccountInactive) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// myRole reports the role of the user and the areas it opens.
func (api *userApi) myRole(ctx echo.Context) error {
	gate, err := getContextGate(ctx, api.svc)
	if err != nil {
		return err
	}

	resp := RoleResponse{Access: make(map[string]string, 3)}
	for name, area := range map[string]user.Area{
		"admin":     user.AdminArea,
		"analytics": user.AnalyticsArea,
		"staff":     user.StaffArea,
	} {
		access, err := gate.Check(ctx.Request().Context(), area)
		if err != nil {
			return errors.Wrap(err, "looking up role")
		}
		resp.Access[name] = access.String()
	}
	if role := gate.Role(); role != "" {
		resp.Role = &role
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := &user.QueryFilter{
		Search:  ctx.QueryParam("search"),
		Roles:   ctx.QueryParams()["role"],
		ClassID: ctx.QueryParam("class_id"),
	}
	if v := ctx.QueryParam("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return core.NewFieldValidationError("is_active", errors.New("invalid boolean"))
		}
		filter.IsActive = &active
	}
	filter.Clean()

	users, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, userOrderingFields...))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(ctx.Request().Context(), usr, api.validate, api.svc); err != nil {
		return err
	}
	if err = api.checkClass(ctx.Request().Context(), data.ClassID); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) assignRole(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return err
	}

	var data RoleRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RoleRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	// admins cannot demote themselves
	if err = api.checkNotSelf(ctx, usr); err != nil && data.Role != user.RoleAdmin {
		return err
	}

	usr, err = api.svc.AssignRole(ctx.Request().Context(), usr.ID, data.Role)
	if err != nil {
		return errors.Wrap(err, "assigning role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) revokeRole(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return err
	}
	if err = api.checkNotSelf(ctx, usr); err != nil {
		return err
	}

	usr, err = api.svc.RevokeRole(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "revoking role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) setActive(ctx echo.Context) error {
	usr, err := contextObject[user.User](ctx)
	if err != nil {
		return err
	}

	var data ActiveRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActiveRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	if err = api.checkNotSelf(ctx, usr); err != nil && !*data.IsActive {
		return err
	}

	usr, err = api.svc.SetActive(ctx.Request().Context(), usr.ID, *data.IsActive)
	if err != nil {
		return errors.Wrap(err, "setting active flag")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// checkNotSelf forbids the request when usr is the authenticated user.
func (api *userApi) checkNotSelf(ctx echo.Context, usr user.User) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if claims.Subject == usr.ID {
		return errHttpForbidden
	}
	return nil
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	RoleRequest struct {
		Role user.Role `json:"role" validate:"required,role"`
	}

	ActiveRequest struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}

	// RoleResponse carries the role of the user, null when none, and its access ("allowed",
	// "denied" or "no role") to each area.
	RoleResponse struct {
		Role   *user.Role        `json:"role"`
		Access map[string]string `json:"access"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
