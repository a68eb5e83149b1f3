package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/importer"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/user"
	"github.com/telatku/telatku/storage/database/inmem"
	"github.com/telatku/telatku/tests"
)

var (
	usrRepo user.Repository
	clsRepo class.Repository
	stdRepo student.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	clsRepo = inmemdb.NewClassRepository(db)
	stdRepo = inmemdb.NewStudentRepository(db)

	conf := testutil.NewConfig()
	clsSvc := class.NewService(clsRepo)
	stdSvc := student.NewService(stdRepo, clsSvc)

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		conf:     conf,
		usrRepo:  usrRepo,
		importer: importer.New(conf, db, clsSvc, stdSvc),
		out:      out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	origRead := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = origRead })

	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if pwd, ok := tt.extra.(string); ok {
				return []byte(pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	origMigrate := migrateFunc
	t.Cleanup(func() { migrateFunc = origMigrate })
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no command", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown command", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "parents", "sql"}},
	}, nil)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	existing := testutil.CreateUser(t, usrRepo, "Guru Lama", "lama@school.id", "Uj5S8+Wnk2", user.RoleGuruPiket, false)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "--name", "Admin"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--email", "admin@school.id"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "--lol"}, wantErrStr: "unknown flag: --lol"},
		{
			name: "create admin", args: []string{"adduser", "--email", " Admin@School.id ", "--name", "Pak Admin", "--admin"},
			extra: "s3cret-pass",
		},
		{name: "update existing", args: []string{"adduser", "-e", "lama@school.id", "--admin"}, extra: "n3w-pass"},
	}, nil)

	t.Run("created", func(t *testing.T) {
		usr, err := usrRepo.GetUserByEmail(context.Background(), "admin@school.id")
		require.NoError(t, err)
		assert.Equal(t, "Pak Admin", usr.FullName)
		assert.True(t, usr.IsActive)
		assert.Equal(t, user.RoleAdmin, usr.Role)
		assert.NoError(t, usr.CheckPassword("s3cret-pass"))
	})

	t.Run("updated", func(t *testing.T) {
		usr, err := usrRepo.GetUserByID(context.Background(), existing.ID)
		require.NoError(t, err)
		assert.Equal(t, "Guru Lama", usr.FullName)
		assert.True(t, usr.IsActive)
		assert.Equal(t, user.RoleAdmin, usr.Role)
		assert.NoError(t, usr.CheckPassword("n3w-pass"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "User", "awe@school.id", "Uj5S8+Wnk2", user.RoleWaliKelas, true)

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "--email", "lol@school.id"}, wantErr: errHelp},
		{
			name: "user not found", args: []string{"resetpassword", "--email", "lol@school.id"}, extra: "lol",
			wantErr: user.ErrNotFound,
		},
		{name: "reset", args: []string{"resetpassword", "--email", "AWE@school.id"}, extra: "lmao-pass"},
	}, func(t *testing.T, tt cliTest) {
		refreshed, err := usrRepo.GetUserByID(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.NotEqual(t, usr.PasswordHash, refreshed.PasswordHash)
		assert.NoError(t, refreshed.CheckPassword(tt.extra.(string)))
	})
}

func writeSheet(t *testing.T, rows ...[]interface{}) string {
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

	path := filepath.Join(t.TempDir(), "siswa.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func Test_commandLine_importStudents(t *testing.T) {
	cli, out := setup(t)
	xa := testutil.CreateClass(t, clsRepo, "X IPA 1", 10)
	testutil.CreateStudent(t, stdRepo, "1001", "Ani", xa.ID)

	rejected := writeSheet(t,
		[]interface{}{"1001", "Sudah Ada", "X IPA 1"},
		[]interface{}{"3001", "Kelas Salah", "XII Z"},
	)
	valid := writeSheet(t,
		[]interface{}{"3001", "Dewi", "X IPA 1"},
		[]interface{}{"3002", "Eko", "x ipa 1"},
	)
	unsupported := filepath.Join(t.TempDir(), "siswa.csv")
	require.NoError(t, os.WriteFile(unsupported, []byte("NIS\n"), 0o600))

	t.Run("no file", func(t *testing.T) {
		assert.Equal(t, errHelp, cli.run([]string{"admin", "import"}))
	})

	t.Run("missing file", func(t *testing.T) {
		err := cli.run([]string{"admin", "import", "--file", filepath.Join(t.TempDir(), "nope.xlsx")})
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("unsupported file", func(t *testing.T) {
		assert.Error(t, cli.run([]string{"admin", "import", "--file", unsupported}))
	})

	t.Run("rejected", func(t *testing.T) {
		out.Reset()
		err := cli.run([]string{"admin", "import", "-f", rejected})

		var rowErrs *importer.Errors
		require.ErrorAs(t, err, &rowErrs)
		assert.Equal(t, importer.PhaseReference, rowErrs.Phase)
		assert.Contains(t, out.String(), "Baris 2, NIS: NIS 1001 sudah terdaftar")
		assert.Contains(t, out.String(), `Baris 3, Nama Kelas: Kelas "XII Z" tidak ditemukan`)
	})

	t.Run("imported", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "import", "--file", valid}))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		assert.Equal(t, "progress: 100%", lines[len(lines)-2])
		assert.Equal(t, "imported 2 students", lines[len(lines)-1])

		students, err := stdRepo.QueryStudents(context.Background(), nil, nil, 0)
		require.NoError(t, err)
		assert.Len(t, students, 3)
	})
}
