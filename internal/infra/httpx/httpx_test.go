package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/retry"
)

func testClient(maxAttempts int) *http.Client {
	return &http.Client{
		Transport: &Transport{
			Base:   &http.Transport{},
			Policy: retry.Policy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond},
		},
		Timeout: 5 * time.Second,
	}
}

func TestGet_RetriesOnRetryableStatusThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	b, err := Get(context.Background(), testClient(5), srv.URL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "<html>ok</html>" {
		t.Fatalf("body 不正确：%q", string(b))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("期望 3 次请求，实际=%d", got)
	}
}

func TestGet_NoRetryOnNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), testClient(5), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 *StatusError(404)，实际=%v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("404 不应重试，实际请求 %d 次", got)
	}
}

func TestGet_BudgetExhaustedKeepsLastStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := Get(context.Background(), testClient(2), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("期望 *StatusError(502)，实际=%v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("预算=2 时应请求 2 次，实际=%d", got)
	}
}

func TestTransport_SetsStableUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := Get(context.Background(), testClient(1), srv.URL); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if gotUA != UserAgent {
		t.Fatalf("UA 期望 %q，实际=%q", UserAgent, gotUA)
	}
}

func TestNewPageClient_Defaults(t *testing.T) {
	c := NewPageClient()
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Policy != retry.PageFetch {
		t.Fatalf("期望使用 PageFetch 预算，实际=%+v", tr.Policy)
	}
	if c.Timeout <= 0 {
		t.Fatalf("期望设置总超时")
	}
}
