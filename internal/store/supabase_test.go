package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupabaseListSubscribersPagination(t *testing.T) {
	// 1000-row pages followed by a short page.
	total := 1503
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/user_autostocks", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "eq.Mr Carrot", r.URL.Query().Get("item_name"))

		var from, to int
		_, err := fmt.Sscanf(r.Header.Get("Range"), "%d-%d", &from, &to)
		require.NoError(t, err)

		var rows []autostockRow
		for i := from; i <= to && i < total; i++ {
			rows = append(rows, autostockRow{UserID: int64(i + 1), ItemName: "Mr Carrot"})
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL, "secret", 2*time.Second)
	ids, err := s.ListSubscribers(context.Background(), "Mr Carrot")
	require.NoError(t, err)
	assert.Len(t, ids, total)
	assert.Equal(t, int64(1), ids[0])
	assert.Equal(t, int64(total), ids[total-1])
}

func TestSupabaseAddUsesMergeDuplicates(t *testing.T) {
	var gotPrefer string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotPrefer = r.Header.Get("Prefer")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL, "secret", 2*time.Second)
	require.NoError(t, s.Add(context.Background(), 42, "Tomatrio"))

	assert.Equal(t, "resolution=merge-duplicates", gotPrefer)
	assert.JSONEq(t, `[{"user_id":42,"item_name":"Tomatrio"}]`, string(gotBody))
}

func TestSupabasePurgeUserDeletesBothTables(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "eq.42", r.URL.Query().Get("user_id"))
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL, "secret", 2*time.Second)
	require.NoError(t, s.PurgeUser(context.Background(), 42))

	assert.Equal(t, []string{"/rest/v1/user_autostocks", "/rest/v1/bot_users"}, paths)
}

func TestSupabaseCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))

		n := 7
		if strings.Contains(r.URL.Path, "user_autostocks") {
			n = 19
		}
		w.Header().Set("Content-Range", "0-0/"+strconv.Itoa(n))
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL, "secret", 2*time.Second)
	users, subs, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, users)
	assert.Equal(t, 19, subs)
}

func TestSupabaseErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSupabaseStore(srv.URL, "bad-key", 2*time.Second)
	_, err := s.ListItems(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestParseContentRangeTotal(t *testing.T) {
	n, err := parseContentRangeTotal("0-0/42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = parseContentRangeTotal("")
	assert.Error(t, err)
}
