package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChizhovVadim/tfplus/internal/listener"
	"github.com/ChizhovVadim/tfplus/internal/logger"
	"github.com/stretchr/testify/require"
)

func newRoot(t *testing.T) string {
	var root = t.TempDir()
	var logs = listener.NewLogManager(filepath.Join(root, "res_net_ex-20160307090501"))
	var out = listener.NewCSVOutput(logs, "Loss", []string{"train"})
	require.NoError(t, out.Write(1, "train", 2.5))
	require.NoError(t, os.WriteFile(filepath.Join(logs.Folder(), "secret"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), os.ModePerm))
	return root
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	var rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRuns(t *testing.T) {
	var s = NewServer(newRoot(t), logger.Discard())
	var rec = get(t, s, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	require.Equal(t, "res_net_ex-20160307090501", runs[0].ID)
	require.Equal(t, 1, runs[0].Files)
}

func TestCatalogAndFiles(t *testing.T) {
	var s = NewServer(newRoot(t), logger.Discard())

	var rec = get(t, s, "/api/runs/res_net_ex-20160307090501/catalog")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []listener.CatalogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Equal(t, []listener.CatalogEntry{{Filename: "loss.csv", Type: listener.TypeCSV, Name: "Loss"}}, entries)

	rec = get(t, s, "/api/runs/res_net_ex-20160307090501/files/loss.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "step,time,train")

	rec = get(t, s, "/api/runs/res_net_ex-20160307090501/files/secret")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = get(t, s, "/api/runs/missing/catalog")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = get(t, s, "/api/runs/..%2F..%2Fetc/catalog")
	require.NotEqual(t, http.StatusOK, rec.Code)
}

func TestDashboardPage(t *testing.T) {
	var s = NewServer(newRoot(t), logger.Discard())
	var rec = get(t, s, "/deep-dashboard?id=res_net_ex-20160307090501")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/runs/res_net_ex-20160307090501/files/loss.csv")

	rec = get(t, s, "/deep-dashboard")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, NewServer(t.TempDir(), logger.Discard()), "/deep-dashboard")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
