package nsopw

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search/name", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "John", req.FirstName)
		assert.Equal(t, "Doe", req.LastName)

		_, _ = w.Write([]byte(`{"totalHits":1,"offenders":[{"name":{"givenName":"JOHN","middleName":"Q","surName":"DOE"},"dob":"1980-01-02","jurisdictionId":"TX","aliases":[{"givenName":"JACK","surName":"DOE"}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	resp, err := c.SearchByName(context.Background(), SearchRequest{FirstName: "John", LastName: "Doe"})
	require.NoError(t, err)
	require.Len(t, resp.Offenders, 1)
	o := resp.Offenders[0]
	assert.Equal(t, "DOE", o.Name.SurName)
	assert.Equal(t, "1980-01-02", o.DOB)
	assert.Equal(t, "TX", o.Jurisdiction)
	require.Len(t, o.Aliases, 1)
	assert.Equal(t, "JACK", o.Aliases[0].GivenName)
}

func TestSearchByName_APIError(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).SearchByName(context.Background(), SearchRequest{FirstName: "A", LastName: "B"})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.temporary, apiErr.Temporary())
		})
	}
}

func TestSearchByName_RequiresNames(t *testing.T) {
	_, err := NewClient().SearchByName(context.Background(), SearchRequest{LastName: "Doe"})
	assert.Error(t, err)
}

func TestSearchByName_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).SearchByName(context.Background(), SearchRequest{FirstName: "A", LastName: "B"})
	assert.Error(t, err)
}
