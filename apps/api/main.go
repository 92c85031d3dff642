package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/sorobanclub/backend/apps/api/echo"
	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/session"
	"github.com/sorobanclub/backend/core/student"
	"github.com/sorobanclub/backend/core/user"
	emailsvc "github.com/sorobanclub/backend/services/email"
	loggersvc "github.com/sorobanclub/backend/services/logger"
	presencesvc "github.com/sorobanclub/backend/services/presence"
	problemsvc "github.com/sorobanclub/backend/services/problems"
	realtimesvc "github.com/sorobanclub/backend/services/realtime"
	"github.com/sorobanclub/backend/storage/database"
	sqlxrepos "github.com/sorobanclub/backend/storage/database/sqlx"
)

const shutdownTimeout = 20 * time.Second

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lshortfile)
	logger := loggersvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(!(core.Conf.Debug || core.Conf.TestMode))

	if err := run(logger); err != nil {
		logger.Fatal("api: startup failed", err)
	}
}

func run(logger core.Logger) error {
	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		return err
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := database.Migrate(db); err != nil {
		return err
	}

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	var presenceSvc session.PresenceService
	if core.Conf.Presence.BaseURL != "" {
		presenceSvc = presencesvc.NewHTTPService()
	} else {
		presenceSvc = presencesvc.NewDummyService()
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc)
	stuSvc := student.NewService(sqlxrepos.NewStudentRepository(db), usrSvc)
	hub := realtimesvc.NewHub(logger)
	sessSvc := session.NewService(
		sqlxrepos.NewSessionRepository(db),
		stuSvc,
		presenceSvc,
		hub,
		problemsvc.NewGenerator(),
		mailSvc,
		logger,
	)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:    core.Conf.Server.Address(),
			UserSvc:    usrSvc,
			StudentSvc: stuSvc,
			SessionSvc: sessSvc,
			Hub:        hub,
			Logger:     logger,
		},
	)
	go app.Start()

	// block until an OS signal or an integrity error asks for a shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("api: shutting down", s.String())
	case <-app.ShutdownRequested():
		logger.Warn("api: integrity error, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.Stop(ctx)
}
