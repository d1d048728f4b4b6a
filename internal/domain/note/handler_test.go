package note

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ListPersonNotes(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, personID := range []int64{7, 7, 8} {
		require.NoError(t, repo.Create(context.Background(), &Note{
			PersonID:       personID,
			Comment:        "note",
			CreatedAt:      base,
			LastModifiedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/7/notes", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("7")
	require.NoError(t, NewHandler(repo).ListPersonNotes(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data  []Note `json:"data"`
		Total int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Data, 2)
	assert.True(t, body.Data[0].LastModifiedAt.After(body.Data[1].LastModifiedAt), "most recently modified first")
}

func TestHandler_ListsSyncedNotes(t *testing.T) {
	s, notes, _ := newTestSyncer()
	for i := 0; i < 3; i++ {
		_, err := s.Upsert(context.Background(), testPerson(), noteRecord(uuid.New(), "n", "2024-01-02 10:00:00"))
		require.NoError(t, err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/persons/42/notes", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, NewHandler(notes).ListPersonNotes(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":3`)
}

func TestHandler_ListPersonNotes_InvalidID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := NewHandler(NewMemoryRepository()).ListPersonNotes(c)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
}
