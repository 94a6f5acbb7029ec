package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/vladapp/backend/core/school"
	"github.com/vladapp/backend/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	usrRepo user.Repository
	schRepo school.Repository
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.output(), "Usage:")
	fmt.Fprintln(cli.output(), "  resetpassword -identity IDENTITY|EMAIL - reset an account's password")
	fmt.Fprintln(cli.output(), "  listschools - print a roster summary of every school")
}

func (cli *commandLine) output() io.Writer {
	if cli.out != nil {
		return cli.out
	}
	return os.Stdout
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordIdent := resetPasswordCmd.String("identity", "", "The account's identity or email. The password will be prompted next.")

	switch args[1] {
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordIdent == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordIdent, string(pwd))
	case "listschools":
		return cli.listSchools()
	default:
		cli.printUsage()
		return errHelp
	}
}
