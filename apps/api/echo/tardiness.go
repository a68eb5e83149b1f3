package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
	"github.com/telatku/telatku/services/metrics"
	"github.com/telatku/telatku/services/realtime"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
	liveReadLimit  = 512
)

var (
	recordOrderingFields = []string{"date", "time", "student_name", "class_name", "created_at"}

	errInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
)

type tardinessApi struct {
	conf     *core.Config
	svc      tardiness.Service
	userSvc  user.Service
	validate *validator.Validate
	broker   *realtime.Broker
	metrics  *metrics.Metrics
	logger   core.Logger
	upgrader websocket.Upgrader
}

func registerTardinessAPI(g *echo.Group, jwt, wsJWT echo.MiddlewareFunc, guards guards, deps Deps) {
	api := tardinessApi{
		conf:     deps.Conf,
		svc:      deps.TardinessSvc,
		userSvc:  deps.UserSvc,
		validate: deps.Validate,
		broker:   deps.Broker,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		upgrader: websocket.Upgrader{
			// browsers cannot set headers on websockets; the token query param authenticates
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	// outside the header JWT group: the token comes from the query
	g.GET("/tardiness/today/live", api.live, wsJWT, guards.staff)

	tg := g.Group("/tardiness", jwt, guards.staff)
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/today", api.today)
	tg.GET("/reasons", api.reasons)

	dg := tg.Group("/:id", objectMiddleware(func(ctx context.Context, id string) (interface{}, error) {
		return api.svc.GetByID(ctx, id)
	}, tardiness.ErrNotFound))
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy, guards.admin)
}

func (api *tardinessApi) create(ctx echo.Context) error {
	recorder, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return err
	}

	var data tardiness.NewRecord
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecord")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Record(ctx.Request().Context(), recorder, data)
	if err != nil {
		return err
	}
	api.metrics.RecordCreated()
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *tardinessApi) query(ctx echo.Context) error {
	filter := new(tardiness.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []tardiness.Record{})
	}
	filter.Clean()
	if err := api.checkDates(filter); err != nil {
		return err
	}

	records, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, recordOrderingFields...))
	if err != nil {
		return errors.Wrap(err, "querying tardiness records")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *tardinessApi) checkDates(filter *tardiness.QueryFilter) error {
	if filter.StartDate != "" {
		if _, err := core.ParseDate(filter.StartDate, api.svc.Location()); err != nil {
			return core.NewFieldValidationError("start_date", errInvalidDate)
		}
	}
	if filter.EndDate != "" {
		if _, err := core.ParseDate(filter.EndDate, api.svc.Location()); err != nil {
			return core.NewFieldValidationError("end_date", errInvalidDate)
		}
	}
	return nil
}

func (api *tardinessApi) today(ctx echo.Context) error {
	snap, err := api.todaySnapshot(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (api *tardinessApi) reasons(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, tardiness.Reasons())
}

func (api *tardinessApi) retrieve(ctx echo.Context) error {
	rec, err := contextObject[tardiness.Record](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *tardinessApi) destroy(ctx echo.Context) error {
	rec, err := contextObject[tardiness.Record](ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), rec.ID); err != nil {
		return errors.Wrap(err, "deleting tardiness record")
	}
	api.metrics.RecordDeleted()
	return ctx.NoContent(http.StatusNoContent)
}

// TodaySnapshot is the live list of today's records, latest first.
type TodaySnapshot struct {
	Type    string             `json:"type"`
	Date    string             `json:"date"`
	Records []tardiness.Record `json:"records"`
}

func (api *tardinessApi) todaySnapshot(ctx context.Context) (TodaySnapshot, error) {
	date := api.svc.TodayDate()
	records, err := api.svc.Today(ctx)
	if err != nil {
		return TodaySnapshot{}, errors.Wrap(err, "querying today's records")
	}
	if records == nil {
		records = []tardiness.Record{}
	}
	return TodaySnapshot{Type: "snapshot", Date: date, Records: records}, nil
}

// live pushes a fresh snapshot of today's records on connection and after every change.
func (api *tardinessApi) live(ctx echo.Context) error {
	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}
	defer conn.Close()

	sub := api.broker.Subscribe()
	defer sub.Close()
	api.metrics.LiveConnected()
	defer api.metrics.LiveDisconnected()

	// the client only sends pongs and close frames
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(liveReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	reqCtx := ctx.Request().Context()
	send := func() error {
		snap, err := api.todaySnapshot(reqCtx)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		return conn.WriteJSON(snap)
	}

	if err = send(); err != nil {
		api.logger.Error("sending live snapshot", err)
		return nil
	}

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-reqCtx.Done():
			return nil
		case _, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(liveWriteWait))
				return nil
			}
			if err = send(); err != nil {
				api.logger.Debug("live feed closed", err)
				return nil
			}
		case <-ticker.C:
			if err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return nil
			}
		}
	}
}
