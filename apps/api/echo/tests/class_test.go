package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/user"
	"github.com/telatku/telatku/tests"
)

func Test_classApi_query(t *testing.T) {
	resetDB()

	piket := testutil.CreateUser(t, usrRepo, "Piket", "piket@school.id", pwd, user.RoleGuruPiket, true)
	noRole := testutil.CreateUser(t, usrRepo, "Baru", "baru@school.id", pwd, "", true)
	xii := testutil.CreateClass(t, clsRepo, "XII IPA 1", 12)
	xb := testutil.CreateClass(t, clsRepo, "X B", 10)
	xa := testutil.CreateClass(t, clsRepo, "X A", 10)

	runHTTPTests(t, []httpTest{
		{name: "Auth required", path: "/v1/classes", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "Any user (even without role)", path: "/v1/classes", token: getToken(t, noRole), wantData: marshalList(t, xa, xb, xii)},
		{name: "detail", path: "/v1/classes/" + xb.ID, token: getToken(t, piket), wantData: marshalObj(t, xb)},
		{
			name: "detail (unknown)", path: "/v1/classes/lol", token: getToken(t, piket), wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "not found"}),
		},
	})

	t.Run("ordered by grade then name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/classes", getToken(t, piket))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var classes []class.Class
		decode(t, rec, &classes)
		names := make([]string, 0, len(classes))
		for _, c := range classes {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"X A", "X B", "XII IPA 1"}, names)
	})
}

func Test_classApi_write(t *testing.T) {
	resetDB()

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@school.id", pwd, user.RoleAdmin, true)
	piket := testutil.CreateUser(t, usrRepo, "Piket", "piket@school.id", pwd, user.RoleGuruPiket, true)
	taken := testutil.CreateClass(t, clsRepo, "X IPA 1", 10)
	busy := testutil.CreateClass(t, clsRepo, "X IPA 2", 10)
	testutil.CreateStudent(t, stdRepo, "1001", "Ani", busy.ID)
	adminToken := getToken(t, admin)

	runHTTPTests(t, []httpTest{
		{
			name: "Admin required", method: http.MethodPost, path: "/v1/classes", token: getToken(t, piket),
			body: marshalObj(t, class.NewClass{Name: "X IPA 3"}), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Blank name", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: marshalObj(t, class.NewClass{Name: "  "}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"name": "this field cannot be blank"}),
		},
		{
			name: "Invalid grade", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: marshalObj(t, class.NewClass{Name: "IX A", Grade: 9}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"grade": "grade must be one of [10 11 12]"}),
		},
		{
			name: "Name taken (case-insensitive)", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: marshalObj(t, class.NewClass{Name: "x ipa 1"}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"name": class.ErrNameExists.Error()}),
		},
		{
			name: "Rename to a taken name", method: http.MethodPut, path: "/v1/classes/" + busy.ID, token: adminToken,
			body: marshalObj(t, class.UpdateClass{Name: "X IPA 1"}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"name": class.ErrNameExists.Error()}),
		},
		{
			name: "Delete a class with students", method: http.MethodDelete, path: "/v1/classes/" + busy.ID, token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: class.ErrClassInUse.Error()}),
		},
	})

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/classes", adminToken, marshalObj(t, class.NewClass{Name: " X IPA 3 "}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var cls class.Class
		decode(t, rec, &cls)
		assert.NotEmpty(t, cls.ID)
		assert.Equal(t, "X IPA 3", cls.Name)
		assert.Equal(t, class.DefaultGrade, cls.Grade)
	})

	t.Run("update keeps its own name", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/classes/"+taken.ID, adminToken, marshalObj(t, class.UpdateClass{Name: "X IPA 1", Grade: 11}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var cls class.Class
		decode(t, rec, &cls)
		assert.Equal(t, "X IPA 1", cls.Name)
		assert.Equal(t, 11, cls.Grade)
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/classes/"+taken.ID, adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/classes/"+taken.ID, adminToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
