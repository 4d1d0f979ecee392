package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/indysis/core/googlesync"
	"github.com/trezcool/indysis/core/reportcard"
	"github.com/trezcool/indysis/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type (
	reportCards interface {
		CreateReportCards(ctx context.Context, termID int64) (int, error)
		CheckDuplicates(ctx context.Context, termID int64) ([]reportcard.DuplicateEntries, error)
	}

	groupSyncer interface {
		SyncAll(ctx context.Context) (int, error)
		SyncGroupByID(ctx context.Context, id int64) (googlesync.SyncLog, error)
	}
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	rcSvc   reportCards
	syncSvc groupSyncer
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  createreportcards -term TERM_ID - create the missing report cards of a term")
	fmt.Fprintln(cli.out, "  checkreportcards -term TERM_ID - list duplicated report card entries of a term")
	fmt.Fprintln(cli.out, "  syncgroups [-group GROUP_ID] - sync one Google group, or every auto-sync group")
}

// readPassword prompts for a password. An empty password prints the usage of fs.
func (cli *commandLine) readPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every role to the user. The password will be prompted next.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	createCardsCmd := flag.NewFlagSet("createreportcards", flag.ContinueOnError)
	createCardsTerm := createCardsCmd.Int64("term", 0, "The report card term ID.")

	checkCardsCmd := flag.NewFlagSet("checkreportcards", flag.ContinueOnError)
	checkCardsTerm := checkCardsCmd.Int64("term", 0, "The report card term ID.")

	syncGroupsCmd := flag.NewFlagSet("syncgroups", flag.ContinueOnError)
	syncGroupsID := syncGroupsCmd.Int64("group", 0, "The group sync ID. Every auto-sync group is synced when omitted.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, createCardsCmd, checkCardsCmd, syncGroupsCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "createreportcards":
		if err := createCardsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createCardsTerm <= 0 {
			createCardsCmd.Usage()
			return errHelp
		}
		return cli.createReportCards(*createCardsTerm)

	case "checkreportcards":
		if err := checkCardsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *checkCardsTerm <= 0 {
			checkCardsCmd.Usage()
			return errHelp
		}
		return cli.checkReportCards(*checkCardsTerm)

	case "syncgroups":
		if err := syncGroupsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.syncGroups(*syncGroupsID)

	default:
		cli.printUsage()
		return errHelp
	}
}
