// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReplicatesSession(t *testing.T) {
	var gotCookie, gotReferer, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie = c.Value
		}
		gotReferer = r.Header.Get("Referer")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	auth, err := NewAuthenticator(AuthenticatorConfig{Type: "bearer", Token: "tok-123"})
	require.NoError(t, err)

	f := newFetchClient(nil, nil, auth, NewNoopLogger())
	body, err := f.fetch(context.Background(), srv.URL+"/file", "https://site.test/page",
		[]Cookie{{Name: "session", Value: "abc"}})
	require.NoError(t, err)

	assert.Equal(t, "payload", string(body))
	assert.Equal(t, "abc", gotCookie)
	assert.Equal(t, "https://site.test/page", gotReferer)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestFetchRejectsErrorsAndEmptyBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/empty":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	f := newFetchClient(nil, nil, nil, NewNoopLogger())

	_, err := f.fetch(context.Background(), srv.URL+"/missing", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	_, err = f.fetch(context.Background(), srv.URL+"/empty", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty body")
}

func TestNewAuthenticator(t *testing.T) {
	a, err := NewAuthenticator(AuthenticatorConfig{Type: "basic", Username: "u", Password: "p"})
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, "https://x.test", nil)
	require.NoError(t, a.Apply(req))
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	_, err = NewAuthenticator(AuthenticatorConfig{Type: "basic"})
	assert.Error(t, err)

	_, err = NewAuthenticator(AuthenticatorConfig{Type: "bearer"})
	assert.Error(t, err)

	_, err = NewAuthenticator(AuthenticatorConfig{Type: "oauth", Method: "client_credentials"})
	assert.Error(t, err)

	_, err = NewAuthenticator(AuthenticatorConfig{Type: "hmac"})
	assert.Error(t, err)
}
