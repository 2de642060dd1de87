package s2s_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-s2s"
	"github.com/goliatone/go-s2s/repository"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const testIssuer = "space2study-test"

const testPassword = "secret123"

func newTestTokenService() *s2s.TokenService {
	return s2s.NewTokenService(testIssuer, map[s2s.TokenKind]s2s.TokenSettings{
		s2s.TokenAccess:  {Secret: []byte("access-secret"), TTL: 15 * time.Minute},
		s2s.TokenRefresh: {Secret: []byte("refresh-secret"), TTL: 24 * time.Hour},
		s2s.TokenConfirm: {Secret: []byte("confirm-secret"), TTL: 72 * time.Hour},
		s2s.TokenReset:   {Secret: []byte("reset-secret"), TTL: time.Hour},
	}, nil)
}

type sqliteConfig struct{}

func (sqliteConfig) GetDriver() string    { return repository.DriverSQLite }
func (sqliteConfig) GetDSN() string       { return ":memory:" }
func (sqliteConfig) GetMaxOpenConns() int { return 1 }

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := repository.Open(ctx, sqliteConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = repository.Migrate(ctx, db)
	require.NoError(t, err)

	return db
}

type capturingSink struct {
	mu     sync.Mutex
	events []s2s.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt s2s.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []s2s.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]s2s.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type authFixture struct {
	db     *bun.DB
	repo   s2s.RepositoryManager
	tokens *s2s.TokenService
	emails *s2s.MemoryDispatcher
	sink   *capturingSink
	auth   *s2s.AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	db := setupDB(t)
	f := &authFixture{
		db:     db,
		repo:   s2s.NewRepositoryManager(db),
		tokens: newTestTokenService(),
		emails: s2s.NewMemoryDispatcher(),
		sink:   &capturingSink{},
	}

	f.auth = s2s.NewAuthService(f.repo, f.tokens, f.emails).
		WithPasswordHasher(s2s.NewHasher(bcrypt.MinCost)).
		WithActivitySink(f.sink)

	return f
}

func (f *authFixture) signup(t *testing.T, email string, roles ...s2s.Role) *s2s.SignupResult {
	t.Helper()

	if len(roles) == 0 {
		roles = []s2s.Role{s2s.RoleStudent}
	}

	res, err := f.auth.Signup(context.Background(), s2s.SignupInput{
		Roles:     s2s.NewRoles(roles...),
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  testPassword,
		Language:  s2s.LanguageEN,
	})
	require.NoError(t, err)
	return res
}

func (f *authFixture) tokenRecord(t *testing.T, userID string) *s2s.TokenRecord {
	t.Helper()

	record, err := f.repo.Tokens().FindToken(context.Background(), s2s.TokenQuery{UserID: userID})
	require.NoError(t, err)
	return record
}

func (f *authFixture) user(t *testing.T, id string) *s2s.User {
	t.Helper()

	user, err := f.repo.Users().FindByID(context.Background(), id)
	require.NoError(t, err)
	return user
}
