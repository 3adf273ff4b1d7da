package main

import (
	"log"
	"os"

	echoapi "github.com/haneul/gyoryu/apps/api/echo"
	"github.com/haneul/gyoryu/core"
	"github.com/haneul/gyoryu/core/budget"
	"github.com/haneul/gyoryu/core/user"
	emailsvc "github.com/haneul/gyoryu/services/email"
	logsvc "github.com/haneul/gyoryu/services/logger"
	"github.com/haneul/gyoryu/storage/database"
	sqlxrepos "github.com/haneul/gyoryu/storage/database/sqlx"
)

func main() {
	// set up logging
	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewStdLogger()
	} else {
		logger = logsvc.NewRollbarLogger(log.New(os.Stderr, "", log.LstdFlags), core.Conf)
	}

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	budgetSvc := budget.NewService(
		sqlxrepos.NewBudgetRepository(db),
		sqlxrepos.NewProfileRepository(db),
		mailSvc,
		logger,
	)

	// start API server
	app := echoapi.NewServer(&echoapi.Options{
		Address:   core.Conf.Server.Address(),
		UserSvc:   usrSvc,
		BudgetSvc: budgetSvc,
		Logger:    logger,
	})
	app.Start()
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
