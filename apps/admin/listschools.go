package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
)

// listSchools prints one line per school: id, name, siret and roster sizes.
func (cli *commandLine) listSchools() error {
	schools, err := cli.schRepo.QueryAllSchools(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.output(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIRET\tSTUDENTS\tTEACHERS\tGROUPS\tCREATED")
	for _, sch := range schools {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			sch.ID, sch.Name, sch.Siret,
			len(sch.Students), len(sch.Teachers),
			strings.Join(sch.Groups, ","),
			sch.CreatedAt.Format("2006-01-02"),
		)
	}
	return w.Flush()
}
