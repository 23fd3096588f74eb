package earthengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/airbusgeo/geocube-s2chips/service"
	"google.golang.org/api/option"
)

type fakeEarthEngine struct {
	mu       sync.Mutex
	assets   service.StringSet
	requests []string
	status   int
}

func (f *fakeEarthEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/v1/")
	f.mu.Lock()
	f.requests = append(f.requests, name)
	status := f.status
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"code": status, "message": "unavailable"}})
		return
	}
	if !f.assets.Exists(name) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"code": 404, "message": "not found", "status": "NOT_FOUND"}})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"name": name})
}

func newTestChecker(t *testing.T, fake *fakeEarthEngine) *Checker {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	checker, err := NewChecker(context.Background(), 2, option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatal(err)
	}
	return checker
}

func TestCheckerMembers(t *testing.T) {
	fake := &fakeEarthEngine{assets: service.NewStringSet(
		AssetName("COPERNICUS/S2_SR_HARMONIZED", "20190108T104429_20190108T124859_T32UNF"),
		AssetName("COPERNICUS/S2_HARMONIZED", "20170101T104429_20170101T124859_T32UNF"),
	)}
	checker := newTestChecker(t, fake)

	ids := []string{"20190108T104429_20190108T124859_T32UNF", "20170101T104429_20170101T124859_T32UNF", "20190108T104429_20190108T124859_T32UNF"}
	members, err := checker.Members(context.Background(), "COPERNICUS/S2_SR_HARMONIZED", ids)
	if err != nil {
		t.Fatal(err)
	}
	if got := members.Slice(); !reflect.DeepEqual(got, []string{"20190108T104429_20190108T124859_T32UNF"}) {
		t.Errorf("unexpected members %v", got)
	}
	if len(fake.requests) != 2 {
		t.Errorf("expecting one request per unique id, got %d", len(fake.requests))
	}
	if !service.NewStringSet(fake.requests...).Exists("projects/earthengine-public/assets/COPERNICUS/S2_SR_HARMONIZED/20170101T104429_20170101T124859_T32UNF") {
		t.Errorf("unexpected requests %v", fake.requests)
	}

	members, err = checker.Members(context.Background(), "COPERNICUS/S2_HARMONIZED", ids)
	if err != nil {
		t.Fatal(err)
	}
	if got := members.Slice(); !reflect.DeepEqual(got, []string{"20170101T104429_20170101T124859_T32UNF"}) {
		t.Errorf("unexpected members %v", got)
	}
}

func TestCheckerError(t *testing.T) {
	checker := newTestChecker(t, &fakeEarthEngine{status: http.StatusServiceUnavailable})
	_, err := checker.Members(context.Background(), "COPERNICUS/S2_SR_HARMONIZED", []string{"a"})
	if err == nil {
		t.Fatal("expecting an error")
	}
	if !service.Temporary(err) {
		t.Errorf("expecting a temporary error, got %v", err)
	}

	checker = newTestChecker(t, &fakeEarthEngine{status: http.StatusForbidden})
	if _, err := checker.Members(context.Background(), "COPERNICUS/S2_SR_HARMONIZED", []string{"a"}); err == nil || service.Temporary(err) {
		t.Errorf("expecting a permanent error, got %v", err)
	}
}

func TestSessionKeyFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", filepath.Join(dir, "missing.json"))

	if _, err := NewSession(ctx, "", ""); err == nil {
		t.Fatal("expecting an error without credentials")
	}

	keyFile := filepath.Join(dir, "key.json")
	os.WriteFile(keyFile, []byte(`{"type":"authorized_user","client_id":"id","client_secret":"secret","refresh_token":"token"}`), 0600)
	session, err := NewSession(ctx, keyFile, "my-project")
	if err != nil {
		t.Fatal(err)
	}
	opts, err := session.ClientOptions()
	if err != nil || len(opts) != 2 {
		t.Errorf("expecting 2 client options, got %d (%v)", len(opts), err)
	}
	session.Close()
	session.Close()
	if _, err := session.ClientOptions(); err != ErrSessionClosed {
		t.Errorf("expecting ErrSessionClosed, got %v", err)
	}
}
