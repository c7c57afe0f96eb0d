package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"todoapp/internal/config"
	"todoapp/internal/model"
	"todoapp/internal/pkg/password"
	"todoapp/internal/pkg/token"
	"todoapp/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	provider *store.Provider
	hasher   password.Hasher
	auth     *AuthService
	todos    *TodoService
	admin    *AdminService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	p := store.NewProvider(db)
	t.Cleanup(func() { _ = p.Close() })

	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	return &fixture{
		provider: p,
		hasher:   hasher,
		auth:     NewAuthService(hasher, token.NewIssuer("test-secret", time.Minute, nil)),
		todos:    NewTodoService(),
		admin:    NewAdminService(),
		users:    NewUserService(hasher),
	}
}

func (f *fixture) do(t *testing.T, fn func(sess *store.Session) error) error {
	t.Helper()
	return f.provider.WithSession(context.Background(), fn)
}

func (f *fixture) register(t *testing.T, username, pw string, role model.Role) model.Identity {
	t.Helper()
	var user *model.User
	err := f.do(t, func(sess *store.Session) error {
		var err error
		user, err = f.auth.Register(context.Background(), sess, RegisterInput{
			Username:  username,
			Password:  pw,
			Email:     username + "@example.com",
			FirstName: "first",
			LastName:  "last",
			Role:      string(role),
		})
		return err
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return model.Identity{UserID: user.ID, Username: user.Username, Role: user.Role}
}

func (f *fixture) create(t *testing.T, caller model.Identity, title string) *model.Todo {
	t.Helper()
	var todo *model.Todo
	err := f.do(t, func(sess *store.Session) error {
		var err error
		todo, err = f.todos.Create(context.Background(), sess, caller, TodoInput{Title: title, Description: "d", Priority: 3})
		return err
	})
	if err != nil {
		t.Fatalf("create todo: %v", err)
	}
	return todo
}

func (f *fixture) countTodos(t *testing.T) int64 {
	t.Helper()
	var n int64
	_ = f.do(t, func(sess *store.Session) error {
		return sess.DB().Model(&model.Todo{}).Count(&n).Error
	})
	return n
}

func TestAuth_RegisterThenAuthenticate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw123", model.RoleUser)
	ctx := context.Background()

	_ = f.do(t, func(sess *store.Session) error {
		user, ok, err := f.auth.Authenticate(ctx, "alice", "pw123", sess)
		if err != nil || !ok {
			t.Fatalf("expected successful authentication, got ok=%v err=%v", ok, err)
		}
		if user.Username != "alice" || user.HashedPassword == "pw123" || !user.IsActive {
			t.Fatalf("unexpected user: %+v", user)
		}

		user, ok, err = f.auth.Authenticate(ctx, "alice", "wrong", sess)
		if err != nil || ok || user != nil {
			t.Fatalf("expected false for wrong password, got %v %v %v", user, ok, err)
		}

		user, ok, err = f.auth.Authenticate(ctx, "nobody", "pw123", sess)
		if err != nil || ok || user != nil {
			t.Fatalf("expected false for unknown user, got %v %v %v", user, ok, err)
		}
		return nil
	})
}

func TestAuth_InactiveUserCannotAuthenticate(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "bob", "pw123", model.RoleUser)
	_ = f.do(t, func(sess *store.Session) error {
		return sess.DB().Model(&model.User{}).Where("id = ?", id.UserID).Update("is_active", false).Error
	})

	_ = f.do(t, func(sess *store.Session) error {
		_, ok, err := f.auth.Authenticate(context.Background(), "bob", "pw123", sess)
		if err != nil || ok {
			t.Fatalf("expected inactive user to be rejected, got ok=%v err=%v", ok, err)
		}
		return nil
	})
}

func TestAuth_RegisterConflict(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw123", model.RoleUser)

	err := f.do(t, func(sess *store.Session) error {
		_, err := f.auth.Register(context.Background(), sess, RegisterInput{Username: "alice", Password: "other", Role: "user"})
		return err
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAuth_RegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := []RegisterInput{
		{Username: "al", Password: "pw123", Role: "user"},
		{Username: "alice", Password: "", Role: "user"},
		{Username: "alice", Password: "pw123", Role: "superuser"},
		{Username: "alice", Password: strings.Repeat("p", password.MaxLength+1), Role: "user"},
	}
	for _, in := range cases {
		err := f.do(t, func(sess *store.Session) error {
			_, err := f.auth.Register(context.Background(), sess, in)
			return err
		})
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError for %+v, got %v", in, err)
		}
	}
}

func TestAuth_TokenCarriesIdentity(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "alice", "pw123", model.RoleAdmin)

	raw, err := f.auth.IssueToken(&model.User{ID: id.UserID, Username: id.Username, Role: id.Role})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := f.auth.ValidateToken(raw)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got != id {
		t.Fatalf("expected %+v, got %+v", id, got)
	}
}

func TestTodo_CreateGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "pw123", model.RoleUser)
	ctx := context.Background()

	var created *model.Todo
	err := f.do(t, func(sess *store.Session) error {
		var err error
		created, err = f.todos.Create(ctx, sess, alice, TodoInput{Title: "t", Description: "d", Priority: 3, Complete: false})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected generated id")
	}

	_ = f.do(t, func(sess *store.Session) error {
		got, err := f.todos.Get(ctx, sess, alice, created.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := model.Todo{ID: created.ID, Title: "t", Description: "d", Priority: 3, Complete: false, OwnerID: alice.UserID}
		if *got != want {
			t.Fatalf("expected %+v, got %+v", want, *got)
		}
		return nil
	})
}

func TestTodo_InvalidPriorityNotPersisted(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "pw123", model.RoleUser)

	for _, p := range []int{0, 6, 9, -1} {
		err := f.do(t, func(sess *store.Session) error {
			_, err := f.todos.Create(context.Background(), sess, alice, TodoInput{Title: "x", Priority: p})
			return err
		})
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "priority" {
			t.Fatalf("priority %d: expected priority ValidationError, got %v", p, err)
		}
	}
	if n := f.countTodos(t); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestTodo_ForeignTodoLooksAbsent(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "pw123", model.RoleUser)
	bob := f.register(t, "bobby", "pw123", model.RoleUser)
	todo := f.create(t, alice, "alice's")
	ctx := context.Background()

	_ = f.do(t, func(sess *store.Session) error {
		_, foreignErr := f.todos.Get(ctx, sess, bob, todo.ID)
		_, absentErr := f.todos.Get(ctx, sess, bob, todo.ID+1000)
		if !errors.Is(foreignErr, ErrNotFound) || !errors.Is(absentErr, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for both, got %v / %v", foreignErr, absentErr)
		}
		if foreignErr.Error() != absentErr.Error() {
			t.Fatalf("foreign and absent errors differ: %q vs %q", foreignErr, absentErr)
		}
		return nil
	})

	updErr := f.do(t, func(sess *store.Session) error {
		return f.todos.Update(ctx, sess, bob, todo.ID, TodoInput{Title: "hijack", Priority: 1})
	})
	delErr := f.do(t, func(sess *store.Session) error {
		return f.todos.Delete(ctx, sess, bob, todo.ID)
	})
	if !errors.Is(updErr, ErrNotFound) || !errors.Is(delErr, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for update/delete, got %v / %v", updErr, delErr)
	}

	_ = f.do(t, func(sess *store.Session) error {
		got, err := f.todos.Get(ctx, sess, alice, todo.ID)
		if err != nil || got.Title != "alice's" {
			t.Fatalf("expected todo untouched, got %+v %v", got, err)
		}
		return nil
	})
}

func TestTodo_UpdateOverwritesAllFields(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "pw123", model.RoleUser)
	todo := f.create(t, alice, "old")
	ctx := context.Background()

	err := f.do(t, func(sess *store.Session) error {
		return f.todos.Update(ctx, sess, alice, todo.ID, TodoInput{Title: "new", Description: "", Priority: 5, Complete: true})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = f.do(t, func(sess *store.Session) error {
		got, err := f.todos.Get(ctx, sess, alice, todo.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "new" || got.Description != "" || got.Priority != 5 || !got.Complete || got.OwnerID != alice.UserID {
			t.Fatalf("unexpected todo after update: %+v", got)
		}
		return nil
	})

	err = f.do(t, func(sess *store.Session) error {
		return f.todos.Update(ctx, sess, alice, todo.ID, TodoInput{Title: "new", Priority: 7})
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTodo_ListMineAndDelete(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "pw123", model.RoleUser)
	bob := f.register(t, "bobby", "pw123", model.RoleUser)
	a1 := f.create(t, alice, "a1")
	f.create(t, alice, "a2")
	f.create(t, bob, "b1")
	ctx := context.Background()

	_ = f.do(t, func(sess *store.Session) error {
		todos, err := f.todos.ListMine(ctx, sess, alice)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(todos) != 2 {
			t.Fatalf("expected 2 todos, got %d", len(todos))
		}
		for _, td := range todos {
			if td.OwnerID != alice.UserID {
				t.Fatalf("leaked foreign todo %+v", td)
			}
		}
		return nil
	})

	if err := f.do(t, func(sess *store.Session) error { return f.todos.Delete(ctx, sess, alice, a1.ID) }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err := f.do(t, func(sess *store.Session) error { return f.todos.Delete(ctx, sess, alice, a1.ID) })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if n := f.countTodos(t); n != 2 {
		t.Fatalf("expected 2 remaining todos, got %d", n)
	}
}

func TestAdmin_ListAllAndRoleGate(t *testing.T) {
	f := newFixture(t)
	admin := f.register(t, "admin", "pw123", model.RoleAdmin)
	alice := f.register(t, "alice", "pw123", model.RoleUser)
	bob := f.register(t, "bobby", "pw123", model.RoleUser)
	f.create(t, alice, "a1")
	f.create(t, bob, "b1")
	ctx := context.Background()

	_ = f.do(t, func(sess *store.Session) error {
		todos, err := f.admin.ListAll(ctx, sess, admin)
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		owners := map[uint]bool{}
		for _, td := range todos {
			owners[td.OwnerID] = true
		}
		if len(owners) < 2 {
			t.Fatalf("expected todos from two owners, got %v", owners)
		}

		todos, err = f.admin.ListAll(ctx, sess, alice)
		if !errors.Is(err, ErrUnauthorized) || len(todos) != 0 {
			t.Fatalf("expected ErrUnauthorized with no todos, got %d %v", len(todos), err)
		}
		return nil
	})
}

func TestAdmin_DeleteAny(t *testing.T) {
	f := newFixture(t)
	admin := f.register(t, "admin", "pw123", model.RoleAdmin)
	alice := f.register(t, "alice", "pw123", model.RoleUser)
	todo := f.create(t, alice, "a1")
	ctx := context.Background()

	// 非管理员：无论资源是否存在都返回 ErrUnauthorized
	for _, id := range []uint{todo.ID, todo.ID + 1000} {
		err := f.do(t, func(sess *store.Session) error { return f.admin.DeleteAny(ctx, sess, alice, id) })
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for id %d, got %v", id, err)
		}
	}

	err := f.do(t, func(sess *store.Session) error { return f.admin.DeleteAny(ctx, sess, admin, todo.ID+1000) })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.do(t, func(sess *store.Session) error { return f.admin.DeleteAny(ctx, sess, admin, todo.ID) }); err != nil {
		t.Fatalf("delete any: %v", err)
	}
	if n := f.countTodos(t); n != 0 {
		t.Fatalf("expected todo deleted, %d remain", n)
	}
}

func TestUser_GetSelfAndChangePassword(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "pw123", model.RoleUser)
	ctx := context.Background()

	_ = f.do(t, func(sess *store.Session) error {
		user, err := f.users.GetSelf(ctx, sess, alice)
		if err != nil {
			t.Fatalf("get self: %v", err)
		}
		if user.Username != "alice" || user.Email != "alice@example.com" {
			t.Fatalf("unexpected user: %+v", user)
		}
		return nil
	})

	err := f.do(t, func(sess *store.Session) error {
		return f.users.ChangePassword(ctx, sess, alice, "wrong", "newpass1")
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	err = f.do(t, func(sess *store.Session) error {
		return f.users.ChangePassword(ctx, sess, alice, "pw123", "short")
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for short password, got %v", err)
	}

	err = f.do(t, func(sess *store.Session) error {
		return f.users.ChangePassword(ctx, sess, alice, "pw123", strings.Repeat("p", 80))
	})
	if !errors.As(err, &verr) || verr.Field != "new_password" {
		t.Fatalf("expected new_password ValidationError for long password, got %v", err)
	}

	if err := f.do(t, func(sess *store.Session) error {
		return f.users.ChangePassword(ctx, sess, alice, "pw123", "newpass1")
	}); err != nil {
		t.Fatalf("change password: %v", err)
	}

	_ = f.do(t, func(sess *store.Session) error {
		if _, ok, _ := f.auth.Authenticate(ctx, "alice", "pw123", sess); ok {
			t.Fatalf("old password still accepted")
		}
		if _, ok, _ := f.auth.Authenticate(ctx, "alice", "newpass1", sess); !ok {
			t.Fatalf("new password rejected")
		}
		return nil
	})
}

func TestUser_GetSelfUnknownCaller(t *testing.T) {
	f := newFixture(t)
	err := f.do(t, func(sess *store.Session) error {
		_, err := f.users.GetSelf(context.Background(), sess, model.Identity{UserID: 42, Username: "ghost", Role: model.RoleUser})
		return err
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
