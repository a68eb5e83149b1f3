package main

import (
	"log"
	"os"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/importer"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/storage/database"
	sqlxrepos "github.com/telatku/telatku/storage/database/sqlx"
)

func main() {
	logger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(err)
	}

	clsSvc := class.NewService(sqlxrepos.NewClassRepository(db))
	stdSvc := student.NewService(sqlxrepos.NewStudentRepository(db), clsSvc)

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       db.DB,
		usrRepo:  sqlxrepos.NewUserRepository(db),
		importer: importer.New(conf, sqlxrepos.NewTransactor(db), clsSvc, stdSvc),
		out:      os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
