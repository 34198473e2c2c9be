package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "session_id"
	csrfHeaderName    = "X-CSRF-Token"
	csrfRejectedCode  = "CSRF_TOKEN_INVALID"
	maxResponseBytes  = 1 << 20
)

// DefaultHTTPClient はタイムアウト付きのHTTPクライアント。
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// endpoint はベースURLに対するJSON APIの呼び出しをまとめる。
type endpoint struct {
	base *url.URL
	http *http.Client
}

func newEndpoint(baseURL string, httpClient *http.Client) (endpoint, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return endpoint{}, fmt.Errorf("client: invalid base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return endpoint{base: u, http: httpClient}, nil
}

func (e endpoint) url(path string) string {
	return e.base.String() + path
}

// do はJSONリクエストを送り、2xxの場合はoutにデコードする。
// それ以外のステータスは*APIErrorとして返す。
func (e endpoint) do(ctx context.Context, method, path string, in, out any, header http.Header) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.url(path), body)
	if err != nil {
		return fmt.Errorf("client: failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := e.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		// ボディが統一フォーマットでない場合もステータスだけで判定できる
		_ = json.NewDecoder(limited).Decode(apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("client: failed to decode response: %w", err)
	}
	return nil
}

// Session はWebセッションCookieで認証されたAPIクライアント。
// 状態変更リクエストにはダブルサブミット用のCSRFトークンを自動で付与する。
type Session struct {
	endpoint

	mu   sync.Mutex
	csrf string
}

// NewSession はセッションIDを保持したSessionを生成する。
// httpClientのJarは上書きされる。nilの場合はDefaultHTTPClientを使う。
func NewSession(baseURL, sessionID string, httpClient *http.Client) (*Session, error) {
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: failed to create cookie jar: %w", err)
	}
	withJar := *httpClient
	withJar.Jar = jar

	ep, err := newEndpoint(baseURL, &withJar)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(ep.base, []*http.Cookie{{Name: sessionCookieName, Value: sessionID, Path: "/"}})
	return &Session{endpoint: ep}, nil
}

func (s *Session) csrfToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.csrf != "" {
		return s.csrf, nil
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := s.endpoint.do(ctx, http.MethodGet, "/api/csrf-token", nil, &resp, nil); err != nil {
		return "", err
	}
	s.csrf = resp.Token
	return s.csrf, nil
}

func (s *Session) resetCSRF() {
	s.mu.Lock()
	s.csrf = ""
	s.mu.Unlock()
}

// do はセッションCookie付きでリクエストを送る。CSRF検証で拒否された場合だけトークンを取り直して1回再送する。
// 権限不足などそれ以外の403は再送しない。
func (s *Session) do(ctx context.Context, method, path string, in, out any) error {
	if method == http.MethodGet || method == http.MethodHead {
		return s.endpoint.do(ctx, method, path, in, out, nil)
	}

	for attempt := 0; ; attempt++ {
		token, err := s.csrfToken(ctx)
		if err != nil {
			return err
		}
		err = s.endpoint.do(ctx, method, path, in, out, http.Header{csrfHeaderName: {token}})
		if attempt == 0 && isCSRFRejected(err) {
			s.resetCSRF()
			continue
		}
		return err
	}
}

func isCSRFRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden && apiErr.Code == csrfRejectedCode
}
