package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/user"
)

// RollbarLogger reports to Rollbar and mirrors everything on a standard
// logger so local output stays readable when reporting is disabled.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// splitPerson extracts the first user.User from args, attaches it to the
// Rollbar item as the person in context, and returns msg with the remaining
// args for reporting.
func (l RollbarLogger) splitPerson(msg string, args []interface{}) []interface{} {
	item := make([]interface{}, 0, len(args)+1)
	item = append(item, msg)

	var person *user.User
	for _, arg := range args {
		usr, ok := arg.(user.User)
		if ok && person == nil {
			person = &usr
			continue
		}
		item = append(item, arg)
	}
	if person != nil {
		rollbar.SetPerson(person.ID, person.Identity, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	return item
}

func (l RollbarLogger) echo(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.splitPerson(msg, args)...)
	l.echo(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.splitPerson(msg, args)...)
	l.echo(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.splitPerson(msg, args)...)
	l.echo(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.splitPerson(msg, args)...)
	l.echo(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.splitPerson(msg, args)...)
	l.echo(msg, args)
	l.std.Fatal(msg)
}
