package main

import (
	"github.com/trezcool/indysis/storage/database"
)

var migrationRunFunc = database.RunMigration // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrationRunFunc(cli.db, args[0], args[1:]...)
}
