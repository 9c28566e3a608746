package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/THARINDU-DHANANJAYA-Coding-Slave/SWMD/internal/retry"
)

const (
	defaultTimeout = 30 * time.Second

	// UserAgent 是固定的工具标识（写给站点看的）。
	UserAgent = "SWMD/1.0 (+https://example.local)"
)

// Transport 把“UA + keep-alive + 有界重试 + 退避”固化为统一策略。
//
// 设计目标：workshop 只负责“定位页面 + 解析 HTML”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	// Policy 是重试预算；对临时性状态码（429/5xx）与传输错误生效。
	Policy retry.Policy
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.Policy.MaxAttempts
	if max < 1 || !canRetry {
		max = 1
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		r := cloneRequest(req)
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", UserAgent)
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			if !retry.RetryableStatus(resp.StatusCode) || attempt == max {
				return resp, nil
			}
			// 读完并关闭 body，让连接可以被复用。
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		} else {
			lastErr = err
			if attempt == max {
				return nil, lastErr
			}
		}

		if werr := t.Policy.Wait(req.Context(), attempt); werr != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func cloneRequest(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	return req.Clone(req.Context())
}

// NewPageClient 构造用于创意工坊页面抓取的 HTTP client。
//
// 规则：
// - 固定 UA（站点限流时行为可预期）
// - 有界重试 + 指数退避（预算见 retry.PageFetch）+ 总超时
func NewPageClient() *http.Client {
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	return &http.Client{
		Transport: &Transport{Base: base, Policy: retry.PageFetch},
		Timeout:   defaultTimeout,
	}
}

// StatusError 表示重试预算耗尽后，站点仍返回非 2xx 状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Get 抓取 URL 并整体读入 body。
// 非 2xx 返回 *StatusError；空 body 视为错误（上游偶发截断）。
func Get(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}
