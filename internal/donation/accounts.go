package donation

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/geo"
)

const passwordCost = 12

var validate = validator.New()

type AccountStore interface {
	FindConstituency(ctx context.Context, name string) (*db.Constituency, error)
	CreateUser(ctx context.Context, nu *db.NewUser) (*db.User, error)
	FindCredentials(ctx context.Context, email string) (*db.Credentials, error)
}

// TokenIssuer signs bearer tokens. *auth.Issuer satisfies it.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// Accounts registers users and logs them in.
type Accounts struct {
	store  AccountStore
	tokens TokenIssuer
	jitter *geo.Jitterer
	logger *zap.Logger
	cost   int
}

func NewAccounts(store AccountStore, tokens TokenIssuer, jitter *geo.Jitterer, logger *zap.Logger) *Accounts {
	return &Accounts{
		store:  store,
		tokens: tokens,
		jitter: jitter,
		logger: logger,
		cost:   passwordCost,
	}
}

type Signup struct {
	Fullname  string `validate:"required"`
	Username  string `validate:"required"`
	Password  string `validate:"required"`
	Email     string `validate:"required,email"`
	Phone     string `validate:"required"`
	Bloodtype string
	Location  string `validate:"required"`
	Usertype  string `validate:"required,oneof=Donor Recipient 'Healthcare Provider'"`
}

// Session is what a successful signup or login hands back.
type Session struct {
	User  *db.User `json:"user"`
	Token string   `json:"token"`
}

func (in *Signup) normalize() {
	in.Fullname = strings.TrimSpace(in.Fullname)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Bloodtype = strings.TrimSpace(in.Bloodtype)
	in.Location = strings.TrimSpace(in.Location)
}

func signupError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("All fields are required.")
	}
	switch verrs[0].Tag() {
	case "email":
		return apperr.Validation("Invalid email")
	case "oneof":
		return apperr.Validation("Invalid user type.")
	default:
		return apperr.Validation("All fields are required.")
	}
}

// strongPassword wants at least 8 characters with an upper and lower case
// letter, a digit and a symbol.
func strongPassword(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

// Signup creates an available user geocoded from their constituency with an
// unrounded jitter, and returns a token for them.
func (a *Accounts) Signup(ctx context.Context, in Signup) (*Session, error) {
	in.normalize()
	if err := validate.Struct(in); err != nil {
		return nil, signupError(err)
	}

	switch {
	case in.Usertype == db.UserTypeDonor && !db.ValidBloodType(in.Bloodtype):
		return nil, apperr.Validation("Donors must provide a valid blood type.")
	case in.Bloodtype == "":
		in.Bloodtype = "N/A"
	case in.Bloodtype != "N/A" && !db.ValidBloodType(in.Bloodtype):
		return nil, apperr.Validation("Invalid blood type.")
	}

	if !strongPassword(in.Password) {
		return nil, apperr.Validation("Password must be at least 8 characters, with one uppercase letter, one lowercase letter, one number, and one special character.")
	}

	c, err := a.store.FindConstituency(ctx, in.Location)
	if notFound(err) {
		return nil, apperr.Validation("Invalid location: constituency not found")
	}
	if err != nil {
		a.logger.Error("find constituency failed", zap.Error(err), zap.String("location", in.Location))
		return nil, apperr.Internal("find constituency", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		a.logger.Error("hash password failed", zap.Error(err))
		return nil, apperr.Internal("hash password", err)
	}

	p := a.jitter.Jitter(c.Centroid())
	phone := in.Phone
	u, err := a.store.CreateUser(ctx, &db.NewUser{
		Fullname:     in.Fullname,
		Username:     in.Username,
		PasswordHash: string(hash),
		Email:        in.Email,
		Phone:        &phone,
		Usertype:     in.Usertype,
		Bloodtype:    in.Bloodtype,
		Location:     c.Name,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("Username, email or phone number already in use.")
	}
	if err != nil {
		a.logger.Error("create user failed", zap.Error(err), zap.String("usertype", in.Usertype))
		return nil, apperr.Internal("create user", err)
	}

	return a.session(u)
}

// Login checks the password against the stored hash. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("Please fill in all fields")
	}

	creds, err := a.store.FindCredentials(ctx, email)
	if notFound(err) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if err != nil {
		a.logger.Error("find credentials failed", zap.Error(err))
		return nil, apperr.Internal("find credentials", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		a.logger.Info("login rejected", zap.Int64("user_id", creds.ID))
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	return a.session(&creds.User)
}

func (a *Accounts) session(u *db.User) (*Session, error) {
	token, err := a.tokens.Issue(u.ID)
	if err != nil {
		a.logger.Error("issue token failed", zap.Error(err), zap.Int64("user_id", u.ID))
		return nil, apperr.Internal("issue token", err)
	}
	return &Session{User: u, Token: token}, nil
}
