package inmemdb

import (
	"context"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) find(id string) int {
	for i, u := range repo.db.profiles {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (repo *userRepository) withRole(usr user.User) user.User {
	usr.Role = repo.db.roles[usr.ID]
	return usr
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.profiles {
		if usr.Email == email && !contains(excludedIDs, usr.ID) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = newID()
	if usr.Role != "" {
		repo.db.roles[usr.ID] = usr.Role
	}
	profile := usr
	profile.Role = ""
	repo.db.profiles = append(repo.db.profiles, profile)
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if i := repo.find(id); i >= 0 {
		return repo.withRole(repo.db.profiles[i]), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.profiles {
		if usr.Email == email {
			return repo.withRole(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.profiles))
	for _, usr := range repo.db.profiles {
		usr = repo.withRole(usr)
		if filter != nil {
			if filter.Search != "" && !(containsFold(usr.FullName, filter.Search) || containsFold(usr.Email, filter.Search)) {
				continue
			}
			if len(filter.Roles) > 0 && !contains(filter.Roles, string(usr.Role)) {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
			if filter.ClassID != "" && usr.ClassID != filter.ClassID {
				continue
			}
		}
		users = append(users, usr)
	}

	if len(ordering) == 0 {
		ordering = userOrdering
	}
	sortRows(users, ordering, userFields)
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	i := repo.find(usr.ID)
	if i < 0 {
		return user.User{}, user.ErrNotFound
	}
	profile := usr
	profile.Role = ""
	profile.CreatedAt = repo.db.profiles[i].CreatedAt
	repo.db.profiles[i] = profile
	return repo.withRole(profile), nil
}

func (repo *userRepository) GetRole(_ context.Context, userID string) (user.Role, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.roles[userID], nil
}

func (repo *userRepository) SetRole(_ context.Context, userID string, role user.Role) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.find(userID) < 0 {
		return user.ErrNotFound
	}
	repo.db.roles[userID] = role
	return nil
}

func (repo *userRepository) ClearRole(_ context.Context, userID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.roles, userID)
	return nil
}
