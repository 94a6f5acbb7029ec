package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/vladapp/backend/apps/api/echo"
	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/registration"
	"github.com/vladapp/backend/core/school"
	"github.com/vladapp/backend/core/siret"
	"github.com/vladapp/backend/core/user"
	"github.com/vladapp/backend/core/verification"
	billingsvc "github.com/vladapp/backend/services/billing"
	emailsvc "github.com/vladapp/backend/services/email"
	logsvc "github.com/vladapp/backend/services/logger"
	siretsvc "github.com/vladapp/backend/services/siret"
	inmemdb "github.com/vladapp/backend/storage/database/inmem"
	"github.com/vladapp/backend/storage/database/mongodb"
	redisstore "github.com/vladapp/backend/storage/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	ctx := context.Background()

	// set up DB
	db, err := mongodb.Connect(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Disconnect(ctx); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	// set up keyed store; local runs do not need a Redis instance
	var kvStore core.KeyedStore
	if conf.Debug {
		kvStore = inmemdb.NewKeyedStore()
	} else {
		if kvStore, err = redisstore.Connect(ctx, conf); err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	auth := echoapi.NewJWTAuth(conf)
	usrSvc := user.NewService(mongodb.NewUserRepository(db), mailSvc, auth, logger, conf)
	schSvc := school.NewService(mongodb.NewSchoolRepository(db))
	siretCheck := siret.NewValidator(siretsvc.NewInseeRegistry(conf, logger), kvStore, logger, conf)
	gateway := billingsvc.NewStripeGateway(conf, logger)
	coordinator := registration.NewCoordinator(gateway, usrSvc, schSvc, siretCheck, logger, conf)
	verifySvc := verification.NewService(kvStore, mailSvc, logger, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
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
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newTranslator() ut.Translator {
	enLocale := en.New()
	uniTrans := ut.New(enLocale, enLocale)
	translator, _ := uniTrans.GetTranslator(enLocale.Locale())
	return translator
}
