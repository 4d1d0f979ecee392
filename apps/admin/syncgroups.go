package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) syncGroups(groupID int64) error {
	ctx := context.Background()
	if groupID > 0 {
		log, err := cli.syncSvc.SyncGroupByID(ctx, groupID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s\n%s\n", log.Status, log.Messages)
		return nil
	}
	n, err := cli.syncSvc.SyncAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "synced %d groups\n", n)
	return nil
}
