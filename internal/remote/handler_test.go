package remote

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultratendency/sentry/internal/update"
)

func postUpdate(t *testing.T, h http.Handler, body []byte, encoding string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, PathUpdates, bytes.NewReader(body))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestHandler_FullImageReplacesTree(t *testing.T) {
	r := NewReplica(nil)
	h := NewHandler(r)

	partial, err := update.Marshal(sampleUpdate(6))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, postUpdate(t, h, partial, "").Code)

	img := update.New(6, true)
	img.NewPathChange("db.other").AddPath([]string{"x"})

	data, err := update.Marshal(img)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, postUpdate(t, h, compressBody(data), contentEncodingZstd).Code)

	assert.Equal(t, []string{"db.other"}, r.Objects())
	assert.Equal(t, int64(6), r.LastSeen())
}

func TestReplica_SkipsRedeliveredIncrementalUpdates(t *testing.T) {
	r := NewReplica(nil)

	require.True(t, r.Apply(sampleUpdate(7)))

	remove := update.New(8, false)
	remove.NewPathChange("db.tbl").RemoveAll()
	require.True(t, r.Apply(remove))
	assert.Empty(t, r.Objects())

	// A late retry of 7 must not resurrect the removed path.
	assert.False(t, r.Apply(sampleUpdate(7)))
	assert.Empty(t, r.Objects())
	assert.Equal(t, int64(8), r.LastSeen())

	// A full image always applies, even at a lower number.
	img := update.New(3, true)
	img.NewPathChange("db.x").AddPath([]string{"x"})
	require.True(t, r.Apply(img))
	assert.Equal(t, []string{"db.x"}, r.Objects())
	assert.Equal(t, int64(3), r.LastSeen())

	assert.True(t, r.Apply(sampleUpdate(4)))
	assert.Equal(t, []string{"db.tbl", "db.x"}, r.Objects())
}

func TestHandler_RedeliveryAcknowledged(t *testing.T) {
	r := NewReplica(nil)
	h := NewHandler(r)

	data, err := update.Marshal(sampleUpdate(6))
	require.NoError(t, err)

	for range 2 {
		require.Equal(t, http.StatusNoContent, postUpdate(t, h, data, "").Code)
	}

	assert.Equal(t, int64(6), r.LastSeen())
	assert.Equal(t, [][]string{{"warehouse", "db", "tbl"}}, r.PathsOf("db.tbl"))
}

func TestHandler_Rejects(t *testing.T) {
	h := NewHandler(NewReplica(nil))

	tests := []struct {
		name     string
		body     []byte
		encoding string
		status   int
	}{
		{"garbage", []byte{0xff, 0x00, 0x13}, "", http.StatusBadRequest},
		{"bad zstd", []byte("not zstd"), contentEncodingZstd, http.StatusBadRequest},
		{"unknown encoding", []byte{}, "br", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, postUpdate(t, h, tt.body, tt.encoding).Code)
		})
	}
}

func TestHandler_LastSeenAndPing(t *testing.T) {
	r := NewReplica(nil)
	r.SetLastSeen(17)
	h := NewHandler(r)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathLastSeen, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body lastSeenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(17), body.SeqNum)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathPing, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathUpdates, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
