package main

import (
	"log"
	"os"

	"github.com/haneul/gyoryu/core"
	"github.com/haneul/gyoryu/core/user"
	"github.com/haneul/gyoryu/storage/database"
	sqlxrepos "github.com/haneul/gyoryu/storage/database/sqlx"
)

func main() {
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		log.Fatalf("%+v", err)
	}

	db, err := database.Open(core.Conf)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer func() { _ = db.Close() }()

	cli := &commandLine{
		db:     db.DB,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db)),
	}
	if err := cli.run(os.Args); err != nil && err != errHelp {
		log.Fatalf("%+v", err)
	}
}
