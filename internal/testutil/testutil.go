// Package testutil provides shared helpers for handler tests.
package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fms/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CreateTestUser inserts a user and returns its id.
func CreateTestUser(t *testing.T, db *sql.DB, username, password, role string, active bool) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	act := 0
	if active {
		act = 1
	}
	res, err := db.Exec("INSERT INTO users (username, password_hash, display_name, role, active) VALUES (?, ?, ?, ?, ?)",
		username, string(hash), username, role, act)
	if err != nil {
		t.Fatalf("insert user %s: %v", username, err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// CreateTestSession opens a session for a user and returns the token.
func CreateTestSession(t *testing.T, db *sql.DB, userID int) string {
	t.Helper()
	token := uuid.NewString()
	expires := time.Now().Add(24 * time.Hour).Format("2006-01-02 15:04:05")
	if _, err := db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)", token, userID, expires); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	return token
}

// AuthedRequest builds a JSON request carrying a session cookie.
func AuthedRequest(method, path, body, token string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "fms_session", Value: token})
	}
	return req
}

// AuthedJSONRequest marshals v as the request body.
func AuthedJSONRequest(t *testing.T, method, path string, v interface{}, token string) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "fms_session", Value: token})
	}
	return req
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("decode data from envelope: %v", err)
	}
}
