package provisioner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorxys/dify-0.15.3/internal/auth"
)

var testConfig = Config{
	EmailDomain:    "mengyimengsao.com",
	PolicyPassword: "policy-pass-1",
}

func identity() *auth.ExternalIdentity {
	return &auth.ExternalIdentity{
		Provider:    "http",
		Identifier:  "13800138000",
		AccessToken: "ext-abc",
		User:        auth.ExternalUser{ID: "1", Username: "test"},
	}
}

// registerOrLogin mimics the chat backend: it creates the account on first
// sight and logs it in on every call.
type registerOrLogin struct {
	mu       sync.Mutex
	accounts map[string]string
	calls    atomic.Int32
	payloads []auth.RegistrationPayload
}

func (s *registerOrLogin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	var p auth.RegistrationPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	if _, ok := s.accounts[p.Email]; !ok {
		s.accounts[p.Email] = fmt.Sprintf("acct-%d", len(s.accounts)+1)
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"result":"success","data":{"access_token":"int-%s-%d","refresh_token":"ref-1"}}`,
		s.accounts[p.Email], s.calls.Load())
}

func newServer(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL + "/console/api"
}

func TestBuildPayload(t *testing.T) {
	got := BuildPayload(testConfig, identity())
	assert.Equal(t, auth.RegistrationPayload{
		Email:             "13800138000@mengyimengsao.com",
		Name:              "test",
		Password:          "policy-pass-1",
		InterfaceLanguage: "zh-CN",
	}, got)

	anon := identity()
	anon.User.Username = ""
	assert.Equal(t, "User_13800138000", BuildPayload(testConfig, anon).Name)
}

func TestEmail_Deterministic(t *testing.T) {
	assert.Equal(t, Email("13800138000", "Example.COM"), Email(" 13800138000 ", "example.com"))
}

func TestProvision_Success(t *testing.T) {
	backend := &registerOrLogin{accounts: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/console/api/register", r.URL.Path)
		backend.ServeHTTP(w, r)
	}))
	defer srv.Close()

	cfg := testConfig
	cfg.APIPrefix = srv.URL + "/console/api/"
	p := NewHTTP(cfg, nil)

	grant, err := p.Provision(context.Background(), identity())
	require.NoError(t, err)
	assert.Equal(t, "int-acct-1-1", grant.AccessToken)
	assert.Equal(t, "ref-1", grant.RefreshToken)
	assert.NotEqual(t, "ext-abc", grant.AccessToken)

	require.Len(t, backend.payloads, 1)
	assert.Equal(t, "13800138000@mengyimengsao.com", backend.payloads[0].Email)
}

func TestProvision_Idempotent(t *testing.T) {
	backend := &registerOrLogin{accounts: map[string]string{}}
	cfg := testConfig
	cfg.APIPrefix = newServer(t, backend)
	p := NewHTTP(cfg, nil)

	first, err := p.Provision(context.Background(), identity())
	require.NoError(t, err)
	second, err := p.Provision(context.Background(), identity())
	require.NoError(t, err)

	assert.NotEmpty(t, first.AccessToken)
	assert.NotEmpty(t, second.AccessToken)
	assert.Len(t, backend.accounts, 1, "same identifier maps to one account")
	assert.Equal(t, backend.payloads[0], backend.payloads[1])
}

func TestProvision_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     error
		wantMessage string
	}{
		{"error result", http.StatusOK, `{"result":"error","message":"account frozen"}`, auth.ErrProvisionRejected, "account frozen"},
		{"success without token", http.StatusOK, `{"result":"success","data":{}}`, auth.ErrProvisionRejected, ""},
		{"token without success flag", http.StatusOK, `{"data":{"access_token":"int-xyz"}}`, auth.ErrProvisionRejected, ""},
		{"nested error message", http.StatusBadRequest, `{"error":{"message":"invalid email"}}`, auth.ErrProvisionRejected, "invalid email"},
		{"flat message", http.StatusForbidden, `{"message":"registration disabled"}`, auth.ErrProvisionRejected, "registration disabled"},
		{"conflict", http.StatusConflict, `{"message":"account already exists"}`, auth.ErrProvisionRejected, "account already exists"},
		{"no body", http.StatusInternalServerError, ``, auth.ErrProvisionRejected, "HTTP Error 500"},
		{"malformed success", http.StatusOK, `<html>`, auth.ErrMalformedResponseBody, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig
			cfg.APIPrefix = newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			grant, err := NewHTTP(cfg, nil).Provision(context.Background(), identity())
			assert.Nil(t, grant)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantMessage, auth.UpstreamMessage(err))
		})
	}
}

func TestProvision_MissingConfiguration(t *testing.T) {
	var calls atomic.Int32
	url := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))

	for name, cfg := range map[string]Config{
		"prefix":   {EmailDomain: "d", PolicyPassword: "p"},
		"domain":   {APIPrefix: url, PolicyPassword: "p"},
		"password": {APIPrefix: url, EmailDomain: "d"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewHTTP(cfg, nil).Provision(context.Background(), identity())
			assert.ErrorIs(t, err, auth.ErrMissingConfiguration)
			assert.Equal(t, auth.KindMissingConfiguration, auth.KindOf(err))
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestProvision_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := testConfig
	cfg.APIPrefix = url
	_, err := NewHTTP(cfg, nil).Provision(context.Background(), identity())
	assert.ErrorIs(t, err, auth.ErrNetworkFailure)
}

func TestConfigMissing(t *testing.T) {
	assert.Equal(t, []string{"INTERNAL_API_PREFIX", "INTERNAL_EMAIL_DOMAIN", "INTERNAL_POLICY_PASSWORD"}, Config{}.Missing())
	assert.Empty(t, Config{APIPrefix: "x", EmailDomain: "y", PolicyPassword: "z"}.Missing())
}
