package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/telatku/telatku/core/importer"
)

// importStudents imports a spreadsheet of students, printing the progress and the row errors.
func (cli *commandLine) importStudents(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	rows, err := importer.ReadRows(f, filepath.Base(path))
	if err != nil {
		return err
	}

	res, err := cli.importer.Import(context.Background(), rows, func(percent float64) {
		fmt.Fprintf(cli.out, "progress: %3.0f%%\n", percent)
	})
	if err != nil {
		var rowErrs *importer.Errors
		if errors.As(err, &rowErrs) {
			fmt.Fprintln(cli.out, rowErrs.Summary(cli.conf.Importer.MaxErrorsShown))
		}
		return err
	}
	fmt.Fprintf(cli.out, "imported %d students\n", res.Imported)
	return nil
}
