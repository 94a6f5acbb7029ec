package echoapi_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	echoapi "github.com/vladapp/backend/apps/api/echo"
)

func Test_contactApi_send(t *testing.T) {
	env := setup(t, time.Minute)

	data := echoapi.ContactRequest{
		Name:    "Jean Parent",
		Email:   "jparent@test.fr",
		Subject: "Question tarifs",
		Message: "Bonjour, combien coûte un abonnement ?",
	}
	req, rec := newRequest(http.MethodPost, "/v1/contact", marshallObj(t, data))
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; body = %s", rec.Code, rec.Body.String())
	}

	msgs := env.mailSvc.messages()
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1", len(msgs))
	}
	msg := msgs[0]
	if !strings.Contains(msg.Subject, "Question tarifs") {
		t.Errorf("subject = %q, want it to contain the request subject", msg.Subject)
	}
	if !strings.Contains(msg.TextContent, "jparent@test.fr") || !strings.Contains(msg.TextContent, data.Message) {
		t.Errorf("body = %q, want sender and message", msg.TextContent)
	}
}

func Test_contactApi_validation(t *testing.T) {
	env := setup(t, time.Minute)

	data := echoapi.ContactRequest{Name: "Jean", Email: "not-an-email", Subject: "s", Message: "m"}
	req, rec := newRequest(http.MethodPost, "/v1/contact", marshallObj(t, data))
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
	if len(env.mailSvc.messages()) != 0 {
		t.Error("mail sent for invalid request")
	}
}
