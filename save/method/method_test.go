package method

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sinspired/clash-butler/config"
)

func TestLocalSaver(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	ls := NewLocalSaver(dir)
	if err := ls.Save(context.Background(), []byte("proxies: []\n"), "all.yaml"); err != nil {
		t.Fatal(err)
	}
	got, err := ls.Read("all.yaml")
	if err != nil || string(got) != "proxies: []\n" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := ls.Read("../all.yaml"); err == nil {
		t.Error("应拒绝目录穿越")
	}
	for _, name := range []string{"", "a/b.yaml"} {
		if err := ls.Save(context.Background(), []byte("x"), name); err == nil {
			t.Errorf("文件名 %q 应返回错误", name)
		}
	}
	if err := ls.Save(context.Background(), nil, "empty.yaml"); err == nil {
		t.Error("空数据应返回错误")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("输出目录残留临时文件: %v", entries)
	}
}

func TestWebDAVUpload(t *testing.T) {
	var gotPath, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		gotUser, _, _ = r.BasicAuth()
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	w := NewWebDAVUploader(srv.URL+"/dav/", "user", "pass", "")
	if err := w.Save(context.Background(), []byte("data"), "base64.txt"); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/dav/base64.txt" || gotBody != "data" || gotUser != "user" {
		t.Errorf("path=%s body=%s user=%s", gotPath, gotBody, gotUser)
	}
}

func TestNew(t *testing.T) {
	s, err := New(&config.Config{SaveMethod: "local"}, "")
	if err != nil || s != nil {
		t.Errorf("local: %v %v", s, err)
	}
	s, err = New(&config.Config{SaveMethod: "webdav", WebDAVURL: "http://127.0.0.1/dav", WebDAVUsername: "u", WebDAVPassword: "p"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*WebDAVUploader); !ok {
		t.Errorf("got %T", s)
	}
	s, err = New(&config.Config{SaveMethod: "s3", S3Endpoint: "https://minio.example.com", S3AccessID: "id", S3SecretKey: "key", S3Bucket: "b"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*S3Uploader); !ok {
		t.Errorf("got %T", s)
	}
	if _, err := New(&config.Config{SaveMethod: "gist"}, ""); err == nil {
		t.Error("未知保存方式应返回错误")
	}
}

func TestStatsSaverPrune(t *testing.T) {
	ss := NewStatsSaver(t.TempDir(), 2)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		if _, err := ss.Save([]byte("a: 1\n"), base.Add(time.Duration(i)*time.Hour), ""); err != nil {
			t.Fatal(err)
		}
	}
	names, err := ss.List()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"stats-20260501-020000.yaml", "stats-20260501-010000.yaml"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("List() = %v, want %v", names, want)
	}
}

func TestContentType(t *testing.T) {
	for name, want := range map[string]string{
		"clash.yaml": "application/x-yaml",
		"a.json":     "application/json",
		"base64.txt": "text/plain; charset=utf-8",
	} {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%s) = %s", name, got)
		}
	}
}
