// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package dataverse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"migration/app/logging"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type recorded struct {
	method string
	uri    string
	body   string
	form   map[string]string
}

type fakeDataverse struct {
	mu       sync.Mutex
	requests []recorded
	respond  func(r *http.Request) string
}

func newFakeDataverse(t *testing.T, respond func(r *http.Request) string) (*fakeDataverse, *Client) {
	t.Helper()
	f := &fakeDataverse{respond: respond}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, uri: r.URL.RequestURI()}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			rec.form = map[string]string{}
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				for k, v := range r.MultipartForm.Value {
					rec.form[k] = v[0]
				}
				for k, fhs := range r.MultipartForm.File {
					fh, _ := fhs[0].Open()
					b, _ := io.ReadAll(fh)
					rec.form[k] = fhs[0].Filename + ":" + string(b)
				}
			}
		} else {
			b, _ := io.ReadAll(r.Body)
			rec.body = string(b)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, f.respond(r))
	}))
	t.Cleanup(server.Close)
	return f, NewClient(server.URL, "token")
}

func ok(data string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return `{"status":"OK","data":` + data + `}`
	}
}

func TestCreateDataset(t *testing.T) {
	f, c := newFakeDataverse(t, ok(`{"id":42,"persistentId":"doi:10.11587/ABC123"}`))
	created, err := c.CreateDataset(context.Background(), "col1", []byte(`{"datasetVersion":{}}`))
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	if created.Id != 42 || created.PersistentId != "doi:10.11587/ABC123" {
		t.Errorf("created = %+v", created)
	}
	req := f.requests[0]
	if req.method != "POST" || req.uri != "/api/v1/dataverses/col1/datasets" || req.body != `{"datasetVersion":{}}` {
		t.Errorf("request = %+v", req)
	}
}

func TestResponseValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"error status", `{"status":"ERROR","message":"not allowed"}`},
		{"missing status", `{"data":{"id":1}}`},
		{"missing data", `{"status":"OK"}`},
		{"null data", `{"status":"OK","data":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newFakeDataverse(t, func(*http.Request) string { return tt.body })
			_, err := c.PublishDataset(context.Background(), "doi:10.11587/ABC123", "major")
			var protocolErr *ProtocolError
			if !errors.As(err, &protocolErr) {
				t.Fatalf("expected ProtocolError, got %v", err)
			}
			if protocolErr.Op != "publish dataset" {
				t.Errorf("op = %q", protocolErr.Op)
			}
		})
	}
}

func TestDatasetOperations(t *testing.T) {
	pid := "doi:10.11587/ABC123"
	tests := []struct {
		name   string
		call   func(c *Client) error
		method string
		uri    string
	}{
		{"publish", func(c *Client) error { _, err := c.PublishDataset(context.Background(), pid, "major"); return err },
			"POST", "/api/v1/datasets/:persistentId/actions/:publish?persistentId=" + pid + "&type=major"},
		{"destroy", func(c *Client) error { _, err := c.DestroyDataset(context.Background(), pid); return err },
			"DELETE", "/api/v1/datasets/:persistentId/destroy/?persistentId=" + pid},
		{"delete", func(c *Client) error { _, err := c.DeleteDataset(context.Background(), pid); return err },
			"DELETE", "/api/v1/datasets/:persistentId/versions/:draft?persistentId=" + pid},
		{"edit", func(c *Client) error {
			_, err := c.EditDatasetMetadata(context.Background(), pid, []byte(`{"fields":[]}`), true)
			return err
		}, "PUT", "/api/v1/datasets/:persistentId/editMetadata/?persistentId=" + pid + "&replace=true"},
		{"redetect", func(c *Client) error { _, err := c.Redetect(context.Background(), "17", false); return err },
			"POST", "/api/v1/files/17/redetect?dryRun=false"},
		{"get by id", func(c *Client) error { _, err := c.GetDataset(context.Background(), "42", false); return err },
			"GET", "/api/v1/datasets/42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeDataverse(t, ok(`{"message":"done"}`))
			if err := tt.call(c); err != nil {
				t.Fatalf("call: %v", err)
			}
			if got := f.requests[0]; got.method != tt.method || got.uri != tt.uri {
				t.Errorf("request = %v %v, want %v %v", got.method, got.uri, tt.method, tt.uri)
			}
		})
	}
}

func TestGetDataset(t *testing.T) {
	_, c := newFakeDataverse(t, ok(`{"id":42,"identifier":"ABC123","protocol":"doi","authority":"10.11587"}`))
	info, err := c.GetDataset(context.Background(), "42", false)
	if err != nil {
		t.Fatal(err)
	}
	if info.Identifier != "ABC123" || info.Id != 42 {
		t.Errorf("info = %+v", info)
	}
}

func TestUploadDatafile(t *testing.T) {
	f, c := newFakeDataverse(t, ok(`{"files":[]}`))
	p := filepath.Join(t.TempDir(), "f.sav")
	if err := os.WriteFile(p, []byte("raw data"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := c.UploadDatafile(context.Background(), "doi:10.11587/ABC123", p, []byte(`{"description":"d"}`))
	if err != nil {
		t.Fatalf("UploadDatafile: %v", err)
	}
	req := f.requests[0]
	if req.uri != "/api/v1/datasets/:persistentId/add?persistentId=doi:10.11587/ABC123" {
		t.Errorf("uri = %v", req.uri)
	}
	if req.form["file"] != "f.sav:raw data" || req.form["jsonData"] != `{"description":"d"}` {
		t.Errorf("form = %v", req.form)
	}

	if _, err := c.UpdateDatafileMetadata(context.Background(), "17", []byte(`{"restrict":true}`)); err != nil {
		t.Fatalf("UpdateDatafileMetadata: %v", err)
	}
	req = f.requests[1]
	if req.uri != "/api/v1/files/17/metadata" || req.form["jsonData"] != `{"restrict":true}` {
		t.Errorf("request = %+v", req)
	}
}

func TestUploadMissingFile(t *testing.T) {
	f, c := newFakeDataverse(t, ok(`{}`))
	if _, err := c.UploadDatafile(context.Background(), "doi:x", filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Fatal("expected error")
	}
	if len(f.requests) != 0 {
		t.Error("request sent for missing file")
	}
}

func TestRedetector(t *testing.T) {
	f, c := newFakeDataverse(t, func(r *http.Request) string {
		if strings.Contains(r.URL.Path, "/files/2/") {
			return `{"status":"ERROR","message":"no such file"}`
		}
		return `{"status":"OK","data":{"dryRun":false}}`
	})
	p := filepath.Join(t.TempDir(), "df_id.json")
	if err := os.WriteFile(p, []byte(`["1", 2, "3"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	ids, err := ReadFileIds(p)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(ids)
	if string(b) != `["1","2","3"]` {
		t.Errorf("ids = %s", b)
	}
	res, err := NewRedetector(c, 1000, logging.Discard()).Run(context.Background(), ids)
	if err != nil {
		t.Fatal(err)
	}
	if res.Done != 2 || res.Failed != 1 || len(f.requests) != 3 {
		t.Errorf("result = %+v, requests = %d", res, len(f.requests))
	}
}
