package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	echoapi "github.com/vladapp/backend/apps/api/echo"
	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/registration"
	"github.com/vladapp/backend/core/school"
	"github.com/vladapp/backend/core/siret"
	"github.com/vladapp/backend/core/user"
	"github.com/vladapp/backend/core/verification"
	inmemdb "github.com/vladapp/backend/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeMailSvc struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (svc *fakeMailSvc) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = append(svc.sent, messages...)
}

func (svc *fakeMailSvc) messages() []*core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]*core.EmailMessage, len(svc.sent))
	copy(out, svc.sent)
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	subs      map[string]uuid.UUID
	fail      bool
	lookupErr error
}

func (gw *fakeGateway) StartSubscription(ctx context.Context, sub registration.NewSubscription) (registration.Subscription, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.fail {
		return registration.Subscription{}, errors.New("gateway rejected")
	}
	subID := "sub_" + sub.RegistrationID.String()[:8]
	gw.subs[subID] = sub.RegistrationID
	return registration.Subscription{CustomerID: "cus_test", SubscriptionID: subID}, nil
}

func (gw *fakeGateway) GetRegistrationID(ctx context.Context, subscriptionID string) (uuid.UUID, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.lookupErr != nil {
		return uuid.Nil, gw.lookupErr
	}
	id, ok := gw.subs[subscriptionID]
	if !ok {
		return uuid.Nil, registration.ErrUnknownRegistration
	}
	return id, nil
}

// waitSubID polls until the gateway has seen a subscription.
func (gw *fakeGateway) waitSubID(t *testing.T) string {
	t.Helper()
	for i := 0; i < 100; i++ {
		gw.mu.Lock()
		for subID := range gw.subs {
			gw.mu.Unlock()
			return subID
		}
		gw.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no subscription was started")
	return ""
}

type fakeRegistry struct{ answers map[string]siret.Establishment }

func (r *fakeRegistry) Lookup(ctx context.Context, number string) (siret.Establishment, error) {
	est, ok := r.answers[number]
	if !ok {
		return siret.Establishment{}, siret.ErrNotRegistered
	}
	return est, nil
}

type testEnv struct {
	server   echoapi.Server
	auth     *echoapi.JWTAuth
	gateway  *fakeGateway
	mailSvc  *fakeMailSvc
	usrSvc   *user.Service
	schools  *school.Service
	usrRepo  user.Repository
	registry *fakeRegistry
}

func setup(t *testing.T, paymentTimeout time.Duration) *testEnv {
	t.Helper()

	conf := &core.Config{
		TestMode:        true,
		AppName:         "Vlad",
		SecretKey:       "test-secret",
		FrontendBaseURL: "http://front.test",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 7 * 24 * time.Hour
	conf.Siret.AllowedActivityPrefixes = []string{"85"}
	conf.Registration.PaymentTimeout = paymentTimeout
	conf.Registration.VerificationCodeTTL = time.Minute

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	kvStore := inmemdb.NewKeyedStore()
	mailSvc := &fakeMailSvc{}
	logger := nopLogger{}

	auth := echoapi.NewJWTAuth(conf)
	usrSvc := user.NewService(usrRepo, mailSvc, auth, logger, conf)
	schSvc := school.NewService(inmemdb.NewSchoolRepository(db))
	registry := &fakeRegistry{answers: map[string]siret.Establishment{
		"11111111111111": {Siret: "11111111111111", Name: "Lycée Test", ActivityCode: "85.31Z"},
		"22222222222222": {Siret: "22222222222222", Name: "Boulangerie", ActivityCode: "10.71C"},
	}}
	siretCheck := siret.NewValidator(registry, kvStore, logger, conf)
	gateway := &fakeGateway{subs: make(map[string]uuid.UUID)}
	coordinator := registration.NewCoordinator(gateway, usrSvc, schSvc, siretCheck, logger, conf)
	verifySvc := verification.NewService(kvStore, mailSvc, logger, conf)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		Auth:        auth,
		UserSvc:     usrSvc,
		SchoolSvc:   schSvc,
		Coordinator: coordinator,
		VerifySvc:   verifySvc,
		MailSvc:     mailSvc,
		Validate:    validate,
		Translator:  translator,
	})

	return &testEnv{
		server:   server,
		auth:     auth,
		gateway:  gateway,
		mailSvc:  mailSvc,
		usrSvc:   usrSvc,
		schools:  schSvc,
		usrRepo:  usrRepo,
		registry: registry,
	}
}

func newTranslator() ut.Translator {
	enLocale := en.New()
	uniTrans := ut.New(enLocale, enLocale)
	translator, _ := uniTrans.GetTranslator(enLocale.Locale())
	return translator
}

type httpErr struct {
	Error string `json:"error"`
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newMultipartRequest builds a school sign-up upload. A nil file is omitted.
func newMultipartRequest(t *testing.T, data interface{}, teachersCSV, studentsCSV []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("data", string(marshallObj(t, data))); err != nil {
		t.Fatalf("writing data field: %v", err)
	}
	for _, f := range []struct {
		field string
		data  []byte
	}{
		{"teachers", teachersCSV},
		{"students", studentsCSV},
	} {
		if f.data == nil {
			continue
		}
		fw, err := w.CreateFormFile(f.field, f.field+".csv")
		if err != nil {
			t.Fatalf("creating %s file part: %v", f.field, err)
		}
		if _, err = fw.Write(f.data); err != nil {
			t.Fatalf("writing %s file part: %v", f.field, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/schools", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, env *testEnv, usr user.User) string {
	t.Helper()
	token, err := env.auth.GenerateToken(env.auth.GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}
