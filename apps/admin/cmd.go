package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/importer"
	"github.com/telatku/telatku/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	db       *sql.DB
	usrRepo  user.Repository
	importer *importer.Importer
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]               - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser --email EMAIL --name NAME [--admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword --email EMAIL          - reset user's password")
	fmt.Fprintln(cli.out, "  import --file PATH                   - import students from an .xlsx|.xls file")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		fs := cli.newFlagSet("adduser")
		email := fs.StringP("email", "e", "", "The user's email. The password will be prompted next.")
		name := fs.StringP("name", "n", "", "The user's full name.")
		isAdmin := fs.Bool("admin", false, "Grant the admin role.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			fs.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			fs.Usage()
			return errHelp
		}
		return cli.addUser(*email, *name, pwd, *isAdmin)

	case "resetpassword":
		fs := cli.newFlagSet("resetpassword")
		email := fs.StringP("email", "e", "", "The user's email. The password will be prompted next.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			fs.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			fs.Usage()
			return errHelp
		}
		return cli.resetPassword(*email, pwd)

	case "import":
		fs := cli.newFlagSet("import")
		path := fs.StringP("file", "f", "", "The .xlsx or .xls file to import.")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *path == "" {
			fs.Usage()
			return errHelp
		}
		return cli.importStudents(*path)

	default:
		cli.printUsage()
		return errHelp
	}
}
