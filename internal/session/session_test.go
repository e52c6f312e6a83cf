package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorxys/dify-0.15.3/internal/auth"
)

// committedRecorder reports its header as already flushed.
type committedRecorder struct {
	*httptest.ResponseRecorder
}

func (committedRecorder) Written() bool { return true }

// failingStorage fails every call.
type failingStorage struct{}

var errBackend = errors.New("backend down")

func (failingStorage) Get(context.Context, string, string) (string, error) { return "", errBackend }
func (failingStorage) Set(context.Context, string, string, string, time.Duration) error {
	return errBackend
}
func (failingStorage) Delete(context.Context, string, string) error { return errBackend }

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestGenerateID(t *testing.T) {
	a, err := GenerateID()
	require.NoError(t, err)
	b, err := GenerateID()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()
	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Get(ctx, "c1", "auth_token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "c1", "auth_token", "int-xyz", time.Hour))
	got, err := m.Get(ctx, "c1", "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "int-xyz", got)

	_, err = m.Get(ctx, "c2", "auth_token")
	assert.ErrorIs(t, err, ErrNotFound, "items are scoped by client id")

	now = now.Add(time.Hour)
	_, err = m.Get(ctx, "c1", "auth_token")
	assert.ErrorIs(t, err, ErrNotFound, "item expires with its ttl")

	require.NoError(t, m.Set(ctx, "c1", "auth_token", "int-xyz", time.Hour))
	require.NoError(t, m.Delete(ctx, "c1", "auth_token"))
	_, err = m.Get(ctx, "c1", "auth_token")
	assert.ErrorIs(t, err, ErrNotFound)
}

// fakeRedis implements the handful of commands RedisStorage uses.
type fakeRedis struct {
	redis.Cmdable
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.(string)
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), f.err)
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	s := NewRedisStorage(fake)

	_, err := s.Get(ctx, "c1", "auth_token")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "c1", "auth_token", "int-xyz", DefaultMaxAge))
	assert.Equal(t, "int-xyz", fake.data["client:c1:auth_token"])
	assert.Equal(t, DefaultMaxAge, fake.ttl["client:c1:auth_token"])

	got, err := s.Get(ctx, "c1", "auth_token")
	require.NoError(t, err)
	assert.Equal(t, "int-xyz", got)

	require.NoError(t, s.Delete(ctx, "c1", "auth_token"))
	assert.Empty(t, fake.data)

	assert.Error(t, s.Set(ctx, "", "auth_token", "x", time.Hour))
	assert.Error(t, s.Set(ctx, "c1", "auth_token", "x", 0))

	fake.err = errBackend
	_, err = s.Get(ctx, "c1", "auth_token")
	assert.ErrorIs(t, err, errBackend)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSetCookie_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, SetCookie(w, "int-xyz", CookieOptions{}))

	c := sessionCookie(t, w, DefaultTokenKey)
	require.NotNil(t, c)
	assert.Equal(t, "int-xyz", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 86400, c.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.False(t, c.HttpOnly)
	assert.False(t, c.Secure)
}

func TestSetCookie_Committed(t *testing.T) {
	w := committedRecorder{httptest.NewRecorder()}
	assert.ErrorIs(t, SetCookie(w, "int-xyz", CookieOptions{}), ErrHeadersWritten)
	assert.ErrorIs(t, ClearCookie(w, CookieOptions{}), ErrHeadersWritten)
}

func TestClientID(t *testing.T) {
	t.Run("issues a new id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/chat-login", nil)

		id := ClientID(w, r, false)
		require.NotEmpty(t, id)

		c := sessionCookie(t, w, ClientCookieName)
		require.NotNil(t, c)
		assert.Equal(t, id, c.Value)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, id, ClientID(w, r, false), "id is visible to the same request")
	})

	t.Run("reuses existing id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/chat-login", nil)
		r.AddCookie(&http.Cookie{Name: ClientCookieName, Value: "c1"})

		assert.Equal(t, "c1", ClientID(w, r, false))
		assert.Nil(t, sessionCookie(t, w, ClientCookieName))
	})

	t.Run("committed response", func(t *testing.T) {
		w := committedRecorder{httptest.NewRecorder()}
		r := httptest.NewRequest(http.MethodGet, "/chat-login", nil)
		assert.Empty(t, ClientID(w, r, false))
	})
}

func TestSynchronizer_PersistThenRead(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/chat-login", nil)

	s := NewSynchronizer(storage, "c1", w, r, CookieOptions{})
	p, err := s.Persist(ctx, "int-xyz")
	require.NoError(t, err)
	assert.Equal(t, Persisted{Storage: true, Cookie: true}, p)
	assert.False(t, p.Degraded())

	got, ok := s.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "int-xyz", got)

	stored, err := storage.Get(ctx, "c1", DefaultTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "int-xyz", stored)

	c := sessionCookie(t, w, DefaultTokenKey)
	require.NotNil(t, c)
	assert.Equal(t, "int-xyz", c.Value)
	assert.Equal(t, "int-xyz", CookieToken(r, DefaultTokenKey))
}

func TestSynchronizer_PersistOverwritesStaleRequestCookie(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/chat-login", nil)
	r.AddCookie(&http.Cookie{Name: DefaultTokenKey, Value: "stale"})
	r.AddCookie(&http.Cookie{Name: "other", Value: "kept"})

	s := NewSynchronizer(nil, "", w, r, CookieOptions{})
	_, err := s.Persist(context.Background(), "fresh")
	require.NoError(t, err)

	assert.Equal(t, "fresh", CookieToken(r, DefaultTokenKey))
	c, err := r.Cookie("other")
	require.NoError(t, err)
	assert.Equal(t, "kept", c.Value)
}

func TestSynchronizer_SelfHealingRead(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	r := httptest.NewRequest(http.MethodGet, "/chat-login", nil)
	r.AddCookie(&http.Cookie{Name: DefaultTokenKey, Value: "from-cookie"})

	s := NewSynchronizer(storage, "c1", httptest.NewRecorder(), r, CookieOptions{})
	got, ok := s.Read(ctx)
	require.True(t, ok)
	assert.Equal(t, "from-cookie", got)

	stored, err := storage.Get(ctx, "c1", DefaultTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "from-cookie", stored, "cookie value is synced back into storage")
}

func TestSynchronizer_ReadAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chat-login", nil)
	s := NewSynchronizer(NewMemoryStorage(), "c1", httptest.NewRecorder(), r, CookieOptions{})

	_, ok := s.Read(context.Background())
	assert.False(t, ok)
}

func TestSynchronizer_ReadFallsBackWhenStorageFails(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chat-login", nil)
	r.AddCookie(&http.Cookie{Name: DefaultTokenKey, Value: "from-cookie"})

	s := NewSynchronizer(failingStorage{}, "c1", httptest.NewRecorder(), r, CookieOptions{})
	got, ok := s.Read(context.Background())
	require.True(t, ok)
	assert.Equal(t, "from-cookie", got)
}

func TestSynchronizer_DegradedMode(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	w := committedRecorder{httptest.NewRecorder()}
	r := httptest.NewRequest(http.MethodPost, "/chat-login", nil)

	s := NewSynchronizer(storage, "c1", w, r, CookieOptions{})
	p, err := s.Persist(ctx, "int-xyz")
	require.NoError(t, err)
	assert.True(t, p.Degraded())

	got, ok := s.Read(ctx)
	require.True(t, ok, "client storage copy stays authoritative")
	assert.Equal(t, "int-xyz", got)
	assert.Empty(t, CookieToken(r, DefaultTokenKey))
}

func TestSynchronizer_StorageUnavailableWritesCookie(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/chat-login", nil)

	s := NewSynchronizer(failingStorage{}, "c1", w, r, CookieOptions{})
	p, err := s.Persist(context.Background(), "int-xyz")
	require.NoError(t, err)
	assert.Equal(t, Persisted{Storage: false, Cookie: true}, p)
	assert.False(t, p.Degraded())
}

func TestSynchronizer_NothingPersisted(t *testing.T) {
	w := committedRecorder{httptest.NewRecorder()}
	r := httptest.NewRequest(http.MethodPost, "/chat-login", nil)

	s := NewSynchronizer(nil, "", w, r, CookieOptions{})
	_, err := s.Persist(context.Background(), "int-xyz")
	assert.ErrorIs(t, err, auth.ErrStorageUnavailable)
	assert.Equal(t, auth.KindStorageUnavailable, auth.KindOf(err))
}

func TestSynchronizer_Clear(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(ctx, "c1", DefaultTokenKey, "int-xyz", time.Hour))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/chat-logout", nil)
	r.AddCookie(&http.Cookie{Name: DefaultTokenKey, Value: "int-xyz"})

	s := NewSynchronizer(storage, "c1", w, r, CookieOptions{})
	s.Clear(ctx)

	_, err := storage.Get(ctx, "c1", DefaultTokenKey)
	assert.ErrorIs(t, err, ErrNotFound)

	c := sessionCookie(t, w, DefaultTokenKey)
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)

	_, ok := s.Read(ctx)
	assert.False(t, ok)
}

func TestSynchronizer_ClearNeverFails(t *testing.T) {
	w := committedRecorder{httptest.NewRecorder()}
	r := httptest.NewRequest(http.MethodPost, "/chat-logout", nil)

	assert.NotPanics(t, func() {
		NewSynchronizer(failingStorage{}, "c1", w, r, CookieOptions{}).Clear(context.Background())
		NewSynchronizer(nil, "", w, r, CookieOptions{}).Clear(context.Background())
	})
}

func TestSynchronizer_CustomKey(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/chat-login", nil)

	s := NewSynchronizer(storage, "c1", w, r, CookieOptions{Name: "console_token"})
	_, err := s.Persist(ctx, "int-xyz")
	require.NoError(t, err)

	assert.Equal(t, "console_token", s.Key())
	assert.NotNil(t, sessionCookie(t, w, "console_token"))
	stored, err := storage.Get(ctx, "c1", "console_token")
	require.NoError(t, err)
	assert.Equal(t, "int-xyz", stored)
}
