package tests

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	. "github.com/telatku/telatku/apps/api/echo"
	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/importer"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/user"
	"github.com/telatku/telatku/tests"
)

func Test_studentApi_query(t *testing.T) {
	resetDB()

	xa := testutil.CreateClass(t, clsRepo, "X A", 10)
	xb := testutil.CreateClass(t, clsRepo, "X B", 10)
	piket := testutil.CreateUser(t, usrRepo, "Piket", "piket@school.id", pwd, user.RoleGuruPiket, true)
	noRole := testutil.CreateUser(t, usrRepo, "Baru", "baru@school.id", pwd, "", true)
	ani := testutil.CreateStudent(t, stdRepo, "1001", "Ani Wijaya", xa.ID)
	budi := testutil.CreateStudent(t, stdRepo, "1002", "Budi Santoso", xb.ID)
	citra := testutil.CreateStudent(t, stdRepo, "2001", "Citra Ayu", xa.ID)
	token := getToken(t, piket)

	runHTTPTests(t, []httpTest{
		{name: "Auth required", path: "/v1/students", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "Role required", path: "/v1/students", token: getToken(t, noRole), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "no role assigned"}),
		},
		{name: "Get all", path: "/v1/students", token: token, wantData: marshalList(t, ani, budi, citra)},
		{name: "search name", path: "/v1/students?search=WIJAYA", token: token, wantData: marshalList(t, ani)},
		{name: "search nis", path: "/v1/students?search=100", token: token, wantData: marshalList(t, ani, budi)},
		{name: "class_id", path: "/v1/students?class_id=" + xa.ID, token: token, wantData: marshalList(t, ani, citra)},
		{name: "quick search", path: "/v1/students/search?q=ayu", token: token, wantData: marshalList(t, citra)},
		{name: "quick search (too short)", path: "/v1/students/search?q=a", token: token, wantData: marshalList(t)},
		{name: "detail", path: "/v1/students/" + budi.ID, token: token, wantData: marshalObj(t, budi)},
		{
			name: "detail (unknown)", path: "/v1/students/lol", token: token, wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "not found"}),
		},
	})

	t.Run("ordering", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students?ordering=-nis", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var students []student.Student
		decode(t, rec, &students)
		require.Len(t, students, 3)
		assert.Equal(t, []string{citra.ID, budi.ID, ani.ID}, []string{students[0].ID, students[1].ID, students[2].ID})
		assert.Equal(t, "X A", students[0].ClassName)
	})
}

func Test_studentApi_write(t *testing.T) {
	resetDB()

	xa := testutil.CreateClass(t, clsRepo, "X A", 10)
	xb := testutil.CreateClass(t, clsRepo, "X B", 10)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@school.id", pwd, user.RoleAdmin, true)
	piket := testutil.CreateUser(t, usrRepo, "Piket", "piket@school.id", pwd, user.RoleGuruPiket, true)
	ani := testutil.CreateStudent(t, stdRepo, "1001", "Ani Wijaya", xa.ID)
	testutil.CreateRecord(t, recRepo, ani.ID, piket.ID, "2024-01-15", "07:10:00", "macet")
	adminToken := getToken(t, admin)

	runHTTPTests(t, []httpTest{
		{
			name: "Admin required", method: http.MethodPost, path: "/v1/students", token: getToken(t, piket),
			body: marshalObj(t, student.NewStudent{NIS: "2001", FullName: "Budi", ClassID: xa.ID}), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Required fields", method: http.MethodPost, path: "/v1/students", token: adminToken,
			body: marshalObj(t, student.NewStudent{}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"nis":       "this field cannot be blank",
				"full_name": "this field cannot be blank",
				"class_id":  "this field is required",
			}),
		},
		{
			name: "Invalid phone", method: http.MethodPost, path: "/v1/students", token: adminToken,
			body:     marshalObj(t, student.NewStudent{NIS: "2001", FullName: "Budi", ClassID: xa.ID, ParentPhone: "call me"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"parent_phone": "invalid phone number"}),
		},
		{
			name: "NIS taken", method: http.MethodPost, path: "/v1/students", token: adminToken,
			body:     marshalObj(t, student.NewStudent{NIS: "1001", FullName: "Budi", ClassID: xa.ID}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"nis": student.ErrNISExists.Error()}),
		},
		{
			name: "Unknown class", method: http.MethodPost, path: "/v1/students", token: adminToken,
			body:     marshalObj(t, student.NewStudent{NIS: "2001", FullName: "Budi", ClassID: "0b7f9d5c-5a9c-4c59-8a33-1f6e41d5d1a1"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"class_id": "class not found"}),
		},
	})

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students", adminToken, marshalObj(t, student.NewStudent{
			NIS: " 2001 ", FullName: "Budi Santoso", ClassID: xb.ID, ParentName: "Pak Santoso", ParentPhone: "+62 812-3456",
		}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var std student.Student
		decode(t, rec, &std)
		assert.Equal(t, "2001", std.NIS)
		assert.Equal(t, "X B", std.ClassName)
		assert.Equal(t, "+62 812-3456", std.ParentPhone)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/students/"+ani.ID, adminToken,
			marshalObj(t, student.UpdateStudent{ClassID: xb.ID, ParentWhatsApp: "0812"}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var std student.Student
		decode(t, rec, &std)
		assert.Equal(t, "1001", std.NIS)
		assert.Equal(t, "Ani Wijaya", std.FullName)
		assert.Equal(t, xb.ID, std.ClassID)
		assert.Equal(t, "X B", std.ClassName)
		assert.Equal(t, "0812", std.ParentWhatsApp)
	})

	t.Run("update to a taken NIS", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/students/"+ani.ID, adminToken, marshalObj(t, student.UpdateStudent{NIS: "2001"}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("delete also deletes the records", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/students/"+ani.ID, adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/tardiness?student_id="+ani.ID, adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})
}

// makeXLSX builds an import spreadsheet with the standard headers and rows.
func makeXLSX(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	header := make([]interface{}, 0, len(importer.Headers))
	for _, h := range importer.Headers {
		header = append(header, h)
	}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &rows[i]))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func newUploadRequest(t *testing.T, path, token, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func Test_studentApi_import(t *testing.T) {
	resetDB()

	xa := testutil.CreateClass(t, clsRepo, "X IPA 1", 10)
	testutil.CreateClass(t, clsRepo, "XI IPS 2", 11)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@school.id", pwd, user.RoleAdmin, true)
	piket := testutil.CreateUser(t, usrRepo, "Piket", "piket@school.id", pwd, user.RoleGuruPiket, true)
	testutil.CreateStudent(t, stdRepo, "1001", "Ani Wijaya", xa.ID)
	adminToken := getToken(t, admin)

	upload := func(t *testing.T, token, filename string, content []byte) *httptest.ResponseRecorder {
		req, rec := newUploadRequest(t, "/v1/students/import", token, filename, content)
		app.ServeHTTP(rec, req)
		return rec
	}
	countStudents := func(t *testing.T) int {
		students, err := stdRepo.QueryStudents(ctxBg, nil, nil, 0)
		require.NoError(t, err)
		return len(students)
	}

	t.Run("admin required", func(t *testing.T) {
		rec := upload(t, getToken(t, piket), "siswa.xlsx", makeXLSX(t))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unsupported file", func(t *testing.T) {
		rec := upload(t, adminToken, "siswa.csv", []byte("NIS,Nama Lengkap\n"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file": "only .xlsx and .xls files are supported"}`, rec.Body.String())
	})

	t.Run("missing file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/students/import", adminToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file": "file is required"}`, rec.Body.String())
	})

	t.Run("too large", func(t *testing.T) {
		rec := upload(t, adminToken, "siswa.xlsx", bytes.Repeat([]byte("x"), int(conf.Importer.MaxUploadSize)+1))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("empty file", func(t *testing.T) {
		rec := upload(t, adminToken, "siswa.xlsx", makeXLSX(t))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "File Excel kosong"}`, rec.Body.String())
	})

	t.Run("structure errors", func(t *testing.T) {
		rec := upload(t, adminToken, "siswa.xlsx", makeXLSX(t,
			[]interface{}{"", "Tanpa NIS", "X IPA 1"},
			[]interface{}{"3001", "", "X IPA 1", "", "bukan nomor"},
			[]interface{}{"3002", "Valid", "X IPA 1"},
		))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

		var resp ImportErrorResponse
		decode(t, rec, &resp)
		assert.Equal(t, importer.PhaseStructure, resp.Phase)
		assert.Equal(t, []importer.RowError{
			{Row: 2, Field: importer.HeaderNIS, Message: "NIS tidak boleh kosong"},
			{Row: 3, Field: importer.HeaderFullName, Message: "Nama lengkap tidak boleh kosong"},
			{Row: 3, Field: importer.HeaderParentPhone, Message: "Format nomor HP tidak valid"},
		}, resp.Errors)
		assert.Equal(t, 1, countStudents(t))
	})

	t.Run("reference errors", func(t *testing.T) {
		rec := upload(t, adminToken, "siswa.xlsx", makeXLSX(t,
			[]interface{}{"1001", "Sudah Ada", "X IPA 1"},
			[]interface{}{"3001", "Kelas Salah", "XII Z"},
			[]interface{}{"3002", "Satu", "x ipa 1"},
			[]interface{}{"3002", "Kembar", "X IPA 1"},
		))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

		var resp ImportErrorResponse
		decode(t, rec, &resp)
		assert.Equal(t, importer.PhaseReference, resp.Phase)
		assert.Equal(t, []importer.RowError{
			{Row: 2, Field: importer.HeaderNIS, Message: "NIS 1001 sudah terdaftar"},
			{Row: 3, Field: importer.HeaderClassName, Message: `Kelas "XII Z" tidak ditemukan`},
			{Row: 5, Field: importer.HeaderNIS, Message: "NIS 3002 duplikat dengan baris 4"},
		}, resp.Errors)
		assert.Equal(t, 1, countStudents(t))
	})

	t.Run("imported", func(t *testing.T) {
		rec := upload(t, adminToken, "siswa.xlsx", makeXLSX(t,
			[]interface{}{"3001", "Dewi", "X IPA 1", "Bu Dewi", "0812 3456", "0812 3456"},
			[]interface{}{"3002", "Eko", "xi ips 2"},
			[]interface{}{"3003", "Fajar", "XI IPS 2"},
		))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"imported": 3}`, rec.Body.String())
		assert.Equal(t, 4, countStudents(t))

		students, err := stdRepo.QueryStudents(ctxBg, &student.QueryFilter{Search: "3001"}, nil, 0)
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.Equal(t, "X IPA 1", students[0].ClassName)
		assert.Equal(t, "Bu Dewi", students[0].ParentName)
		assert.Equal(t, "0812 3456", students[0].ParentWhatsApp)
	})
}

func readImportEvents(t *testing.T, rec *httptest.ResponseRecorder) []ImportEvent {
	t.Helper()
	var events []ImportEvent
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var ev ImportEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	return events
}

func Test_studentApi_importStream(t *testing.T) {
	resetDB()

	testutil.CreateClass(t, clsRepo, "X IPA 1", 10)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@school.id", pwd, user.RoleAdmin, true)
	adminToken := getToken(t, admin)

	t.Run("progress then result", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/students/import?stream=true", adminToken, "siswa.xlsx", makeXLSX(t,
			[]interface{}{"3001", "Dewi", "X IPA 1"},
			[]interface{}{"3002", "Eko", "X IPA 1"},
			[]interface{}{"3003", "Fajar", "X IPA 1"},
		))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/x-ndjson"))

		events := readImportEvents(t, rec)
		last := events[len(events)-1]
		assert.Equal(t, "result", last.Type)
		assert.Equal(t, 3, last.Imported)

		var prev float64
		for _, ev := range events[:len(events)-1] {
			assert.Equal(t, "progress", ev.Type)
			assert.GreaterOrEqual(t, ev.Progress, prev)
			prev = ev.Progress
		}
		assert.InDelta(t, 100, prev, 0.001)
	})

	t.Run("rejected", func(t *testing.T) {
		req, rec := newUploadRequest(t, "/v1/students/import?stream=true", adminToken, "siswa.xlsx", makeXLSX(t,
			[]interface{}{"3001", "Sudah Ada", "X IPA 1"},
			[]interface{}{"4001", "Baru", "X IPA 1"},
		))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		events := readImportEvents(t, rec)
		last := events[len(events)-1]
		assert.Equal(t, "error", last.Type)
		require.Len(t, last.Errors, 1)
		assert.Equal(t, "Baris 2, NIS: NIS 3001 sudah terdaftar", last.Summary)
	})
}

var errStudentsDown = errors.New("students store down")

// brokenStudents fails every batch insert.
type brokenStudents struct {
	student.Service
}

func (brokenStudents) CreateMany(context.Context, []student.NewStudent) error {
	return errStudentsDown
}

// errorLogger records the Error calls.
type errorLogger struct {
	core.Logger
	args [][]interface{}
}

func (l *errorLogger) Error(msg string, args ...interface{}) {
	l.args = append(l.args, args)
}

func Test_studentApi_importStreamFailure(t *testing.T) {
	resetDB()

	testutil.CreateClass(t, clsRepo, "X IPA 1", 10)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@school.id", pwd, user.RoleAdmin, true)

	logger := &errorLogger{Logger: deps.Logger}
	failing := deps
	failing.Logger = logger
	failing.Importer = importer.New(conf, db, deps.ClassSvc, brokenStudents{deps.StudentSvc})
	srv := NewServer(failing)

	req, rec := newUploadRequest(t, "/v1/students/import?stream=true", getToken(t, admin), "siswa.xlsx", makeXLSX(t,
		[]interface{}{"5001", "Gita", "X IPA 1"},
	))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	events := readImportEvents(t, rec)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), last.Error)

	require.Len(t, logger.args, 1)
	args := logger.args[0]
	require.Len(t, args, 2)
	assert.ErrorIs(t, args[0].(error), errStudentsDown)
	assert.Equal(t, admin.ID, args[1].(user.User).ID)
	assert.Equal(t, admin.Email, args[1].(user.User).Email)
}

func Test_studentApi_importTemplate(t *testing.T) {
	resetDB()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@school.id", pwd, user.RoleAdmin, true)
	req, rec := newAuthRequest(http.MethodGet, "/v1/students/import/template", getToken(t, admin))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), importer.TemplateFilename)

	rows, err := importer.ReadRows(rec.Body, importer.TemplateFilename)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "12345", rows[0].Get(importer.HeaderNIS))
}
