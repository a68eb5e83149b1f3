package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/importer"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/services/metrics"
)

const (
	mimeXLSX   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeNDJSON = "application/x-ndjson"
)

var (
	studentOrderingFields = []string{"full_name", "nis", "class_name", "created_at"}

	errFileRequired    = errors.New("file is required")
	errFileUnsupported = errors.New("only .xlsx and .xls files are supported")
)

type studentApi struct {
	conf     *core.Config
	logger   core.Logger
	svc      student.Service
	importer *importer.Importer
	validate *validator.Validate
	metrics  *metrics.Metrics
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, guards guards, deps Deps) {
	api := studentApi{
		conf:     deps.Conf,
		logger:   deps.Logger,
		svc:      deps.StudentSvc,
		importer: deps.Importer,
		validate: deps.Validate,
		metrics:  deps.Metrics,
	}

	sg := g.Group("/students", jwt, guards.staff)
	sg.GET("", api.query)
	sg.POST("", api.create, guards.admin)
	sg.GET("/search", api.search)
	sg.POST("/import", api.importStudents, guards.admin)
	sg.GET("/import/template", api.importTemplate, guards.admin)

	dg := sg.Group("/:id", objectMiddleware(func(ctx context.Context, id string) (interface{}, error) {
		return api.svc.GetByID(ctx, id)
	}, student.ErrNotFound))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, guards.admin)
	dg.DELETE("", api.destroy, guards.admin)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()

	students, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, studentOrderingFields...))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) search(ctx echo.Context) error {
	students, err := api.svc.Search(ctx.Request().Context(), ctx.QueryParam("q"))
	if err != nil {
		return errors.Wrap(err, "searching students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := contextObject[student.Student](ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	std, err := contextObject[student.Student](ctx)
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err = data.Validate(ctx.Request().Context(), std, api.validate, api.svc); err != nil {
		return err
	}

	std, err = api.svc.Update(ctx.Request().Context(), std.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	std, err := contextObject[student.Student](ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), std.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) importTemplate(ctx echo.Context) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, mimeXLSX)
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+importer.TemplateFilename+`"`)
	res.WriteHeader(http.StatusOK)
	return errors.Wrap(importer.WriteTemplate(res), "writing import template")
}

// readUpload reads the rows of the uploaded `file` spreadsheet.
func (api *studentApi) readUpload(ctx echo.Context) ([]importer.Row, error) {
	maxSize := api.conf.Importer.MaxUploadSize
	req := ctx.Request()
	if req.ContentLength > maxSize {
		return nil, echo.ErrStatusRequestEntityTooLarge
	}
	req.Body = http.MaxBytesReader(ctx.Response(), req.Body, maxSize)

	fh, err := ctx.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			return nil, echo.ErrStatusRequestEntityTooLarge
		}
		return nil, core.NewFieldValidationError("file", errFileRequired)
	}
	if fh.Size > maxSize {
		return nil, echo.ErrStatusRequestEntityTooLarge
	}
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".xlsx", ".xls":
	default:
		return nil, core.NewFieldValidationError("file", errFileUnsupported)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	rows, err := importer.ReadRows(f, fh.Filename)
	if err != nil {
		return nil, core.NewFieldValidationError("file", err)
	}
	return rows, nil
}

// importError turns import rejections into client errors and counts them.
func (api *studentApi) importError(err error) error {
	switch e := err.(type) {
	case *importer.Errors:
		api.metrics.ImportRejected(e.Phase)
		return e
	}
	switch err {
	case importer.ErrEmptyFile:
		api.metrics.ImportRejected("empty")
		return core.NewValidationError(err)
	case importer.ErrNothingToImport:
		api.metrics.ImportRejected("nothing")
		return core.NewValidationError(err)
	}
	return errors.Wrap(err, "importing students")
}

// importStudents imports the uploaded spreadsheet. With `?stream=true`, progress events are
// streamed as NDJSON and the last line is the result or the error.
func (api *studentApi) importStudents(ctx echo.Context) error {
	rows, err := api.readUpload(ctx)
	if err != nil {
		return err
	}

	if ctx.QueryParam("stream") != "true" {
		result, err := api.importer.Import(ctx.Request().Context(), rows, nil)
		if err != nil {
			return api.importError(err)
		}
		api.metrics.StudentsImported(result.Imported)
		return ctx.JSON(http.StatusOK, result)
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, mimeNDJSON)
	res.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(res)
	emit := func(ev ImportEvent) {
		_ = enc.Encode(ev)
		res.Flush()
	}

	result, err := api.importer.Import(ctx.Request().Context(), rows, func(percent float64) {
		emit(ImportEvent{Type: "progress", Progress: percent})
	})
	if err != nil {
		ev := ImportEvent{Type: "error"}
		switch e := api.importError(err).(type) {
		case *importer.Errors:
			ev.Error = e.Error()
			ev.Errors = e.Errors
			ev.Summary = e.Summary(api.conf.Importer.MaxErrorsShown)
		case *core.ValidationError:
			ev.Error = e.Error()
		default:
			msg := http.StatusText(http.StatusInternalServerError)
			api.logger.Error(msg, errors.Wrap(e, msg), claimsUser(ctx))
			ev.Error = msg
		}
		emit(ev)
		return nil
	}
	api.metrics.StudentsImported(result.Imported)
	emit(ImportEvent{Type: "result", Progress: 100, Imported: result.Imported})
	return nil
}

// ImportEvent is a line of a streamed import: "progress", then "result" or "error".
type ImportEvent struct {
	Type     string              `json:"type"`
	Progress float64             `json:"progress,omitempty"`
	Imported int                 `json:"imported,omitempty"`
	Error    string              `json:"error,omitempty"`
	Errors   []importer.RowError `json:"errors,omitempty"`
	Summary  string              `json:"summary,omitempty"`
}
