package inmemdb

import (
	"strings"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/class"
	"github.com/telatku/telatku/core/student"
	"github.com/telatku/telatku/core/tardiness"
	"github.com/telatku/telatku/core/user"
)

var (
	classOrdering   = []core.DBOrdering{{Field: "grade", Ascending: true}, {Field: "name", Ascending: true}}
	studentOrdering = []core.DBOrdering{{Field: "full_name", Ascending: true}}
	userOrdering    = []core.DBOrdering{{Field: "full_name", Ascending: true}}

	classFields = map[string]compareFunc[class.Class]{
		"grade": func(a, b class.Class) int { return intCompare(a.Grade, b.Grade) },
		"name":  func(a, b class.Class) int { return strings.Compare(a.Name, b.Name) },
	}

	userFields = map[string]compareFunc[user.User]{
		"full_name":  func(a, b user.User) int { return strings.Compare(a.FullName, b.FullName) },
		"email":      func(a, b user.User) int { return strings.Compare(a.Email, b.Email) },
		"is_active":  func(a, b user.User) int { return boolCompare(a.IsActive, b.IsActive) },
		"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"last_login": func(a, b user.User) int { return a.LastLogin.Compare(b.LastLogin) },
	}

	studentFields = map[string]compareFunc[student.Student]{
		"full_name":  func(a, b student.Student) int { return strings.Compare(a.FullName, b.FullName) },
		"nis":        func(a, b student.Student) int { return strings.Compare(a.NIS, b.NIS) },
		"class_name": func(a, b student.Student) int { return strings.Compare(a.ClassName, b.ClassName) },
		"created_at": func(a, b student.Student) int { return a.CreatedAt.Compare(b.CreatedAt) },
	}

	recordFields = map[string]compareFunc[tardiness.Record]{
		"date":         func(a, b tardiness.Record) int { return strings.Compare(a.Date, b.Date) },
		"time":         func(a, b tardiness.Record) int { return strings.Compare(a.Time, b.Time) },
		"created_at":   func(a, b tardiness.Record) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"id":           func(a, b tardiness.Record) int { return strings.Compare(a.ID, b.ID) },
		"student_name": func(a, b tardiness.Record) int { return strings.Compare(a.StudentName, b.StudentName) },
		"class_name":   func(a, b tardiness.Record) int { return strings.Compare(a.ClassName, b.ClassName) },
	}
)
