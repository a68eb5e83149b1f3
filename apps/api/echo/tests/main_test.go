package tests

import (
	"io"
	"log"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"

	. "github.com/telatku/telatku/apps/api/echo"
	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/analytics"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/importer"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
	"github.com/telatku/telatku/services/email"
	"github.com/telatku/telatku/services/logger"
	"github.com/telatku/telatku/services/metrics"
	"github.com/telatku/telatku/services/realtime"
	"github.com/telatku/telatku/storage/database/inmem"
	"github.com/telatku/telatku/tests"
)

var (
	conf *core.Config
	db   *inmemdb.DB
	deps Deps
	app  *Server

	usrRepo user.Repository
	clsRepo class.Repository
	stdRepo student.Repository
	recRepo tardiness.Repository

	tardinessSvc tardiness.Service
	analyticsSvc analytics.Service
	broker       *realtime.Broker
	appMetrics   *metrics.Metrics
)

func TestMain(m *testing.M) {
	conf = testutil.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	translator := core.NewTranslator(conf.Locale)
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	tardiness.InitValidators(validate, translator)
	if err := core.ParseEmailTemplates(); err != nil {
		log.Fatalf("ParseEmailTemplates(): %v", err)
	}

	// set up DB & repos
	db = inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	clsRepo = inmemdb.NewClassRepository(db)
	stdRepo = inmemdb.NewStudentRepository(db)
	recRepo = inmemdb.NewTardinessRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(conf, db, usrRepo, mailSvc)
	clsSvc := class.NewService(clsRepo)
	stdSvc := student.NewService(stdRepo, clsSvc)
	tardinessSvc = tardiness.NewService(conf, recRepo, stdSvc, usrSvc, mailSvc, logger)
	analyticsSvc = analytics.NewService(tardinessSvc)

	broker = realtime.NewBroker()
	broker.OnEvent(func(realtime.Event) { analyticsSvc.Invalidate() })
	db.OnRecordChange = func(op, id string) { broker.Publish(realtime.Event{Op: op, ID: id}) }
	appMetrics = metrics.New()

	// set up server
	deps = Deps{
		Conf:         conf,
		Logger:       logger,
		Validate:     validate,
		Translator:   translator,
		UserSvc:      usrSvc,
		ClassSvc:     clsSvc,
		StudentSvc:   stdSvc,
		TardinessSvc: tardinessSvc,
		AnalyticsSvc: analyticsSvc,
		Importer:     importer.New(conf, db, clsSvc, stdSvc),
		Broker:       broker,
		Metrics:      appMetrics,
	}
	app = NewServer(deps)

	// run tests
	code := m.Run()

	broker.Close()
	os.Exit(code)
}
