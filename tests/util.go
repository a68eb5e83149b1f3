package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
)

// NewConfig returns the configuration used by tests: TEST env, Jakarta school clock.
func NewConfig() *core.Config {
	return &core.Config{
		TestMode:        true,
		Env:             "TEST",
		AppName:         "Telatku",
		SecretKey:       "test-secret-key",
		Timezone:        "Asia/Jakarta",
		Locale:          "en",
		FrontendBaseURL: "http://front.test",
		FromEmail:       "Telatku <noreply@school.test>",
		Server: core.ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 24 * time.Hour,
		},
		Importer: core.ImporterConfig{BatchSize: 2, MaxUploadSize: 1 << 20, MaxErrorsShown: 3},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FullName:  name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo class.Repository, name string, grade int) class.Class {
	now := time.Now().UTC()
	cls, err := repo.CreateClass(context.Background(), class.Class{Name: name, Grade: grade, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func CreateStudent(t *testing.T, repo student.Repository, nis, name, classID string) student.Student {
	now := time.Now().UTC()
	std, err := repo.CreateStudent(context.Background(), student.Student{
		NIS:       nis,
		FullName:  name,
		ClassID:   classID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

// CreateRecord stores a record of studentID at date ("YYYY-MM-DD") and clock ("HH:MM:SS").
func CreateRecord(
	t *testing.T,
	repo tardiness.Repository,
	studentID, recordedBy, date, clock string,
	reason tardiness.Reason,
) tardiness.Record {
	rec, err := repo.CreateRecord(context.Background(), tardiness.Record{
		StudentID:  studentID,
		RecordedBy: recordedBy,
		Date:       date,
		Time:       clock,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}
	return rec
}
