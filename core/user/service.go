package user

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/mail"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrIdentityExists = errors.New("a user with this identity already exists")
	ErrEmailExists    = errors.New("a user with this email already exists")
)

// maxIdentityRetries bounds the insert-retry loop when concurrent registrations
// race for the same identity prefix.
const maxIdentityRetries = 5

// identityStripes is the size of the mutex stripe serializing the
// count-then-insert step per identity prefix.
const identityStripes = 64

type (
	GetFilter struct {
		ID              string
		IdentityOrEmail string
		Kind            string // optional; empty matches both namespaces
	}

	Repository interface {
		// CreateUser persists usr and returns it with its ID set.
		// Returns ErrIdentityExists when the identity is taken within usr.Kind.
		CreateUser(ctx context.Context, usr User) (User, error)
		// CountIdentityPrefix counts accounts of the given kind whose identity
		// is `prefix` optionally followed by digits.
		CountIdentityPrefix(ctx context.Context, kind, prefix string) (int, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	// TokenGenerator mints the access/refresh token pair embedded in welcome
	// email deep links.
	TokenGenerator interface {
		GenerateTokenPair(usr User) (access, refresh string, err error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		tokens  TokenGenerator
		logger  core.Logger
		conf    *core.Config

		identityMu [identityStripes]sync.Mutex
	}
)

func NewService(repo Repository, mailSvc core.EmailService, tokens TokenGenerator, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		tokens:  tokens,
		logger:  logger,
		conf:    conf,
	}
}

// Register creates a single account of the given kind from a normalized record:
// it derives a collision-free identity, hashes the one-time password and, when
// the record asks for it, sends the welcome email carrying the credentials.
func (svc *Service) Register(ctx context.Context, kind string, rec Record) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Kind:      kind,
		FirstName: core.CleanString(rec.FirstName, true /* lower */),
		LastName:  core.CleanString(rec.LastName, true /* lower */),
		Email:     core.CleanString(rec.Email, true /* lower */),
		Sex:       rec.Sex,
		Birthdate: rec.Birthdate,
		Group:     rec.Group,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(rec.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.createWithIdentity(ctx, usr)
	if err != nil {
		return User{}, err
	}

	if rec.SendMail {
		if err := svc.sendWelcomeMail(ctx, usr, rec.Password); err != nil {
			// the account already exists; a lost welcome email must not fail registration
			svc.logger.Error(fmt.Sprintf("sending welcome email to %s: %v", usr.Email, err), err)
		}
	}
	return usr, nil
}

// createWithIdentity serializes the count-then-insert step per identity prefix
// and retries on a uniqueness violation, so that concurrent registrations of
// colliding names still yield distinct identities.
func (svc *Service) createWithIdentity(ctx context.Context, usr User) (User, error) {
	prefix := DeriveIdentity(usr.FirstName, usr.LastName)

	mu := &svc.identityMu[stripeFor(usr.Kind+":"+prefix)]
	mu.Lock()
	defer mu.Unlock()

	var err error
	for attempt := 0; attempt < maxIdentityRetries; attempt++ {
		var count int
		if count, err = svc.repo.CountIdentityPrefix(ctx, usr.Kind, prefix); err != nil {
			return User{}, errors.Wrap(err, "counting identity collisions")
		}
		usr.Identity = prefix
		if count > 0 {
			usr.Identity += strconv.Itoa(count + 1)
		}

		var created User
		if created, err = svc.repo.CreateUser(ctx, usr); err == nil {
			return created, nil
		}
		if errors.Cause(err) != ErrIdentityExists {
			return User{}, errors.Wrap(err, "creating user")
		}
		// another writer won the identity; recount and retry
	}
	return User{}, errors.Wrap(err, "deriving a unique identity")
}

func stripeFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % identityStripes)
}

// RegisterStudents registers every record independently and in parallel.
// A failing record is logged and skipped; it does not abort the batch. The
// returned ids are positional: ids[i] belongs to recs[i], empty on failure.
func (svc *Service) RegisterStudents(ctx context.Context, recs []Record) ([]string, error) {
	return svc.registerMany(ctx, KindStudent, recs)
}

// RegisterTeachers registers every record independently and in parallel,
// with the same positional-ids contract as RegisterStudents.
func (svc *Service) RegisterTeachers(ctx context.Context, recs []Record) ([]string, error) {
	return svc.registerMany(ctx, KindTeacher, recs)
}

func (svc *Service) registerMany(ctx context.Context, kind string, recs []Record) ([]string, error) {
	ids := make([]string, len(recs))
	var wg sync.WaitGroup
	for i, rec := range recs {
		wg.Add(1)
		go func(i int, rec Record) {
			defer wg.Done()
			usr, err := svc.Register(ctx, kind, rec)
			if err != nil {
				svc.logger.Error(fmt.Sprintf("registering %s %s %s: %v", kind, rec.FirstName, rec.LastName, err), err)
				return
			}
			ids[i] = usr.ID
		}(i, rec)
	}
	wg.Wait()
	return ids, ctx.Err()
}

// Authenticate finds an account by identity or email (students first, then
// teachers, matching the login flow of the portals) and checks the password.
func (svc *Service) Authenticate(ctx context.Context, identityOrEmail, pwd string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{IdentityOrEmail: core.CleanString(identityOrEmail, true /* lower */)})
	if err != nil {
		return User{}, err
	}
	if err := usr.CheckPassword(pwd); err != nil {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

// SetRefreshToken persists the rotated refresh token on the account.
func (svc *Service) SetRefreshToken(ctx context.Context, usr User, token string) (User, error) {
	usr.RefreshToken = token
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *Service) sendWelcomeMail(ctx context.Context, usr User, plainPwd string) error {
	access, refresh, err := svc.tokens.GenerateTokenPair(usr)
	if err != nil {
		return errors.Wrap(err, "generating deep-link tokens")
	}
	if _, err = svc.SetRefreshToken(ctx, usr, refresh); err != nil {
		return errors.Wrap(err, "persisting refresh token")
	}

	deepLink := fmt.Sprintf(
		"%s/auth/redirect?user_id=%s&refreshToken=%s&accessToken=%s",
		svc.conf.FrontendBaseURL, usr.ID, refresh, access,
	)
	html := welcomeMailHTML(core.Capitalize(usr.FirstName), usr.Identity, plainPwd, deepLink)

	msg := core.NewHTMLEmailMessage(mail.Address{Address: usr.Email}, "Identifiant Vlad", html)
	svc.mailSvc.SendMessages(msg)
	return nil
}

func welcomeMailHTML(firstName, identity, password, deepLink string) string {
	return fmt.Sprintf(`
	<div style="font-family: Arial, sans-serif; color: #333; padding: 20px;">
	  <h2>Bienvenue, <b>%s</b> !</h2>
	  <p>Nous sommes ravis de vous accueillir sur <b>l'application Vlad</b> !</p>
	  <h3>Vos identifiants de connexion :</h3>
	  <div style="background-color: #ffffff; border: 1px solid #ddd; padding: 20px; border-radius: 8px;">
	    <p><b>Identifiant :</b> %s</p>
	    <p><b>Mot de passe :</b> %s</p>
	  </div>
	  <p><b>Note :</b> Ne partagez jamais vos identifiants avec qui que ce soit.</p>
	  <div style="text-align: center; margin: 20px 0;">
	    <a href="%s" style="color: white; background-color: #4CAF50; padding: 14px 28px; text-decoration: none; border-radius: 6px;">Se connecter</a>
	  </div>
	</div>`, firstName, identity, password, deepLink)
}
