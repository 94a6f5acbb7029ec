package main

import (
	"context"
	"log"
	"os"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/storage/database/mongodb"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	ctx := context.Background()

	// set up DB
	db, err := mongodb.Connect(ctx, conf)
	errAndDie(err)
	defer func() { errAndDie(db.Disconnect(ctx)) }()

	// start CLI
	cli := commandLine{
		usrRepo: mongodb.NewUserRepository(db),
		schRepo: mongodb.NewSchoolRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
