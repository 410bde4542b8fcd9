package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/miescuela/core"
	logsvc "github.com/trezcool/miescuela/services/logger"
	"github.com/trezcool/miescuela/storage/database"
	boiledrepos "github.com/trezcool/miescuela/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/miescuela/storage/database/sqlx"
)

var logger core.Logger

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB
	err := database.CreateIfNotExist(conf)
	errAndDie(err)
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// start CLI
	cli := commandLine{
		db:        db,
		usrRepo:   boiledrepos.NewUserRepository(db),
		gradeRepo: sqlxrepos.NewGradeRepository(sqlx.NewDb(db, database.DriverName(conf))),
		logger:    logger,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
