package user

import (
	"context"
	"errors"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/telatku/telatku/core"
)

var (
	// errors
	ErrNotFound         = errors.New("user not found")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrRoleNotAllowed   = errors.New("this role cannot be self-assigned")
	ErrAccountInactive  = errors.New("account deactivated")
	ErrInvalidResetLink = errors.New("invalid password reset link")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists when a user other than excludedIDs has email.
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		// CreateUser stores usr and, when set, its Role.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FullName or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		// UpdateUser saves every profile column of usr; the role is left untouched.
		UpdateUser(ctx context.Context, usr User) (User, error)
		// GetRole returns the role of the user, "" when none is assigned.
		GetRole(ctx context.Context, userID string) (Role, error)
		SetRole(ctx context.Context, userID string, role Role) error
		ClearRole(ctx context.Context, userID string) error
	}

	Service interface {
		CheckUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		SignUp(ctx context.Context, nu NewUser) (User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetActive(ctx context.Context, id string, active bool) (User, error)
		RoleLookup
		AssignRole(ctx context.Context, id string, role Role) (User, error)
		RevokeRole(ctx context.Context, id string) (User, error)
		HomeroomTeachers(ctx context.Context, classID string) ([]User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		mailSvc core.EmailService
		tokens  tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, tx core.Transactor, repo Repository, mailSvc core.EmailService) Service {
	return &service{
		tx:      tx,
		repo:    repo,
		mailSvc: mailSvc,
		tokens: tokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   conf.Server.PasswordResetTimeoutDelta,
		},
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, excludedUsers ...User) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}
	if err := svc.repo.CheckEmailUniqueness(ctx, email, ids...); err != nil {
		if err == ErrEmailExists {
			return core.NewFieldValidationError("email", err)
		}
		return pkgerrors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

// SignUp creates an active account with one of the SignUpRoles.
func (svc *service) SignUp(ctx context.Context, nu NewUser) (User, error) {
	if !nu.Role.In(SignUpRoles...) {
		return User{}, core.NewFieldValidationError("role", ErrRoleNotAllowed)
	}
	return svc.Create(ctx, nu)
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		FullName:  nu.FullName,
		Email:     nu.Email,
		Phone:     nu.Phone,
		ClassID:   nu.ClassID,
		IsActive:  true,
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.FullName = uu.FullName
	usr.Email = uu.Email
	if uu.Phone != "" {
		usr.Phone = uu.Phone
	}
	switch uu.ClassID {
	case "":
	case "-":
		usr.ClassID = ""
	default:
		usr.ClassID = uu.ClassID
	}
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, pkgerrors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetActive(ctx context.Context, id string, active bool) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.IsActive = active
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) LookupRole(ctx context.Context, userID string) (Role, error) {
	return svc.repo.GetRole(ctx, userID)
}

func (svc *service) AssignRole(ctx context.Context, id string, role Role) (User, error) {
	if !role.IsValid() {
		return User{}, core.NewFieldValidationError("role", errors.New(roleText))
	}
	var usr User
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if usr, err = svc.repo.GetUserByID(ctx, id); err != nil {
			return err
		}
		if err = svc.repo.SetRole(ctx, id, role); err != nil {
			return pkgerrors.Wrap(err, "setting role")
		}
		usr.Role = role
		return nil
	})
	return usr, err
}

func (svc *service) RevokeRole(ctx context.Context, id string) (User, error) {
	var usr User
	err := svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if usr, err = svc.repo.GetUserByID(ctx, id); err != nil {
			return err
		}
		if err = svc.repo.ClearRole(ctx, id); err != nil {
			return pkgerrors.Wrap(err, "clearing role")
		}
		usr.Role = ""
		return nil
	})
	return usr, err
}

// HomeroomTeachers returns the active homeroom teachers of a class.
func (svc *service) HomeroomTeachers(ctx context.Context, classID string) ([]User, error) {
	if classID == "" {
		return nil, nil
	}
	active := true
	filter := &QueryFilter{Roles: []string{string(RoleWaliKelas)}, IsActive: &active, ClassID: classID}
	return svc.repo.QueryUsers(ctx, filter, nil)
}

// RequestPasswordReset emails a reset link to the active user owning email.
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrAccountInactive
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: struct {
			Name, UID, Token string
		}{
			Name:  usr.FullName,
			UID:   EncodeUID(usr),
			Token: svc.tokens.makeToken(usr),
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	uid, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(ErrInvalidResetLink)
	}
	usr, err := svc.repo.GetUserByID(ctx, uid)
	if err != nil {
		if err == ErrNotFound {
			return core.NewValidationError(ErrInvalidResetLink)
		}
		return pkgerrors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(ErrInvalidResetLink)
	}
	if tag := checkPassword(data.Password, usr.FullName, usr.Email); tag != "" {
		return core.NewFieldValidationError("password", errors.New(pwdPolicyTexts[tag]))
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return pkgerrors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}
