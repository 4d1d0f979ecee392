package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) createReportCards(termID int64) error {
	n, err := cli.rcSvc.CreateReportCards(context.Background(), termID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %d report cards\n", n)
	return nil
}

// checkReportCards prints the entries stored more than once for the same report card element.
func (cli *commandLine) checkReportCards(termID int64) error {
	dups, err := cli.rcSvc.CheckDuplicates(context.Background(), termID)
	if err != nil {
		return err
	}
	if len(dups) == 0 {
		fmt.Fprintln(cli.out, "no duplicate entries")
		return nil
	}
	for _, dup := range dups {
		ids := make([]int64, 0, len(dup.Entries))
		for _, e := range dup.Entries {
			ids = append(ids, e.ID)
		}
		fmt.Fprintf(cli.out, "%s: entries %v\n", dup.Key, ids)
	}
	fmt.Fprintf(cli.out, "%d duplicated elements\n", len(dups))
	return nil
}
