package verification

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
)

// ErrNoPendingCode is returned when an address has no code awaiting
// verification. It is distinct from a plain mismatch, which Verify reports
// through its boolean result.
var ErrNoPendingCode = errors.New("no pending verification code for this address")

const codeLength = 6

// Service issues short-lived numeric verification codes for email addresses.
// At most one code is active per address: issuing overwrites the prior one,
// and a code is consumed by its first verification attempt, matching or not.
type Service struct {
	store   core.KeyedStore
	mailSvc core.EmailService
	logger  core.Logger
	conf    *core.Config
}

func NewService(store core.KeyedStore, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		store:   store,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

// Issue generates a fresh code for the address, stores it with the configured
// TTL and emails it. The code is returned for test observability only.
func (svc *Service) Issue(ctx context.Context, email string) (string, error) {
	email = core.CleanString(email, true /* lower */)
	code := core.RandomDigits(codeLength)

	if err := svc.store.Put(ctx, codeKey(email), []byte(code), svc.conf.Registration.VerificationCodeTTL); err != nil {
		return "", errors.Wrap(err, "storing verification code")
	}

	html := fmt.Sprintf(`
	<div style="font-family: Arial, sans-serif; color: #333;">
	  <h2>Vérification de votre adresse email</h2>
	  <p>Voici votre code de vérification :</p>
	  <p style="font-size: 28px; letter-spacing: 4px;"><b>%s</b></p>
	  <p>Ce code expire dans %d minutes.</p>
	</div>`, code, int(svc.conf.Registration.VerificationCodeTTL.Minutes()))

	msg := core.NewHTMLEmailMessage(mail.Address{Address: email}, "Code de vérification Vlad", html)
	svc.mailSvc.SendMessages(msg)

	return code, nil
}

// Verify consumes the pending code for the address and reports whether it
// matched. The code is deleted whatever the outcome, so it verifies at most once.
func (svc *Service) Verify(ctx context.Context, email, code string) (bool, error) {
	email = core.CleanString(email, true /* lower */)

	stored, err := svc.store.Take(ctx, codeKey(email))
	if err != nil {
		if errors.Cause(err) == core.ErrKeyNotFound {
			return false, ErrNoPendingCode
		}
		return false, errors.Wrap(err, "taking verification code")
	}
	return subtle.ConstantTimeCompare(stored, []byte(code)) == 1, nil
}

func codeKey(email string) string {
	return "verification:email:" + email
}
