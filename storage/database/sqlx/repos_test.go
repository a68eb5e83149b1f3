package sqlxrepos

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
	"github.com/telatku/telatku/storage/database"
)

// testDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB, "up"))
	_, err = db.Exec("TRUNCATE tardiness_records, students, user_roles, profiles, classes CASCADE")
	require.NoError(t, err)
	return db
}

func TestRepositories(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	classRepo := NewClassRepository(db)
	userRepo := NewUserRepository(db)
	studentRepo := NewStudentRepository(db)
	recordRepo := NewTardinessRepository(db)
	tx := NewTransactor(db)

	cls, err := classRepo.CreateClass(ctx, class.Class{Name: "X IPA 1", Grade: 10, CreatedAt: now, UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, class.ErrNameExists, classRepo.CheckNameUniqueness(ctx, "x ipa 1"))
	assert.NoError(t, classRepo.CheckNameUniqueness(ctx, "x ipa 1", cls.ID))

	usr, err := userRepo.CreateUser(ctx, user.User{
		FullName: "Siti Piket", Email: "siti@school.test", IsActive: true, Role: user.RoleGuruPiket,
		PasswordHash: []byte("hash"), CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	got, err := userRepo.GetUserByEmail(ctx, "siti@school.test")
	require.NoError(t, err)
	assert.Equal(t, user.RoleGuruPiket, got.Role)

	require.NoError(t, userRepo.ClearRole(ctx, usr.ID))
	role, err := userRepo.GetRole(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Role(""), role)

	std, err := studentRepo.CreateStudent(ctx, student.Student{
		NIS: "1001", FullName: "Andi", ClassID: cls.ID, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "X IPA 1", std.ClassName)

	existing, err := studentRepo.ExistingNIS(ctx, []string{"1001", "1002"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1001": true}, existing)

	// rolled back with the failing transaction
	errBoom := errors.New("boom")
	err = tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := studentRepo.CreateStudents(ctx, []student.Student{{NIS: "2001", FullName: "Budi", ClassID: cls.ID}}); err != nil {
			return err
		}
		return errBoom
	})
	assert.Equal(t, errBoom, err)
	existing, err = studentRepo.ExistingNIS(ctx, []string{"2001"})
	require.NoError(t, err)
	assert.Empty(t, existing)

	rec, err := recordRepo.CreateRecord(ctx, tardiness.Record{
		StudentID: std.ID, RecordedBy: usr.ID, Date: "2024-03-04", Time: "07:15:00",
		Reason: tardiness.ReasonMacet, CreatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", rec.Date)
	assert.Equal(t, "07:15:00", rec.Time)
	assert.Equal(t, "Siti Piket", rec.RecorderName)

	records, err := recordRepo.QueryRecords(ctx, &tardiness.QueryFilter{StartDate: "2024-03-01", EndDate: "2024-03-31"}, tardiness.OrderChronologic)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, class.ErrClassInUse, classRepo.DeleteClass(ctx, cls.ID))

	require.NoError(t, studentRepo.DeleteStudent(ctx, std.ID))
	_, err = recordRepo.GetRecordByID(ctx, rec.ID)
	assert.Equal(t, tardiness.ErrNotFound, err)

	_, err = userRepo.GetUserByID(ctx, "not-a-uuid")
	assert.Equal(t, user.ErrNotFound, err)
}
