package wxapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"wxassist/internal/config"
	"wxassist/internal/logbus"
	"wxassist/internal/model"
)

// Client 是上游群助手 API 的通用调用器：解析地址、合并请求头、套超时，
// 然后把响应交给 DecodeEnvelope 做信封解析和账号记账。
type Client struct {
	cfg      config.UpstreamConfig
	proxyCfg config.ProxyConfig
	limits   config.LimitsConfig
	bus      *logbus.Bus

	global *rate.Limiter

	mu         sync.Mutex
	perAccount map[string]*rate.Limiter
}

func New(cfg config.UpstreamConfig, proxyCfg config.ProxyConfig, limits config.LimitsConfig, bus *logbus.Bus) *Client {
	c := &Client{
		cfg:        cfg,
		proxyCfg:   proxyCfg,
		limits:     limits,
		bus:        bus,
		perAccount: make(map[string]*rate.Limiter),
	}
	if limits.GlobalQPS > 0 {
		c.global = rate.NewLimiter(rate.Limit(limits.GlobalQPS), limits.GlobalBurst)
	}
	return c
}

// Request 是一次上游调用的参数。Endpoint.Path 可以是相对路径，也可以是完整的
// http(s) 地址（此时绕过账号的 baseUrl）。Timeout 为 0 时依次回退到账号配置、
// 全局 upstream 配置。
type Request struct {
	Endpoint Endpoint
	Headers  map[string]string
	Query    map[string]string
	JSON     any
	Timeout  time.Duration
}

// ResolveURL 把相对路径拼到 base 上；path 本身是完整地址时直接用。
// base 为空且 path 不是完整地址时返回 ErrNoBaseURL。
func ResolveURL(base, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", ErrNoBaseURL
	}
	return base + "/" + strings.TrimLeft(path, "/"), nil
}

// Invoke 对账号发起一次上游调用。返回更新过记账字段（调用计数、鉴权失败时的
// error 状态）的账号值，调用方负责落库——记账总是发生在错误返回之前。
func (c *Client) Invoke(ctx context.Context, acc model.Account, req Request) (Envelope, model.Account, error) {
	target, err := ResolveURL(c.baseURL(acc), req.Endpoint.Path)
	if err != nil {
		return Envelope{}, acc, err
	}

	if err := c.waitLimits(ctx, acc.ID); err != nil {
		return Envelope{}, acc, err
	}

	client := c.newHTTPClient(acc, req.Timeout)
	r := client.R().SetContext(ctx)
	// 调用方传入的头覆盖默认头，同名以调用方为准。
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.JSON != nil {
		r.SetBody(req.JSON)
	}

	method := req.Endpoint.Method
	if method == "" {
		method = http.MethodPost
	}

	resp, err := r.Execute(method, target)
	if err != nil {
		return Envelope{}, acc, err
	}
	return DecodeEnvelope(resp.Body(), acc)
}

func (c *Client) baseURL(acc model.Account) string {
	if strings.TrimSpace(acc.BaseURL) != "" {
		return acc.BaseURL
	}
	return c.cfg.BaseURL
}

func (c *Client) waitLimits(ctx context.Context, accountID string) error {
	if c.global != nil {
		if err := c.global.Wait(ctx); err != nil {
			return err
		}
	}
	if c.limits.PerAccountQPS <= 0 || accountID == "" {
		return nil
	}
	c.mu.Lock()
	lim, ok := c.perAccount[accountID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.limits.PerAccountQPS), c.limits.PerAccountBurst)
		c.perAccount[accountID] = lim
	}
	c.mu.Unlock()
	return lim.Wait(ctx)
}

func (c *Client) newHTTPClient(acc model.Account, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = acc.Timeout()
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeout()
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(c.cfg.Retry.Count).
		SetRetryWaitTime(c.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(c.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	proxy := strings.TrimSpace(acc.Proxy)
	if proxy == "" {
		proxy = strings.TrimSpace(c.proxyCfg.Global)
	}
	if proxy != "" {
		client.SetProxy(proxy)
	}

	ua := strings.TrimSpace(c.cfg.UserAgent)
	if ua == "" {
		ua = "wxassist/1.0"
	}
	client.SetHeader("User-Agent", ua)
	client.SetHeader("Content-Type", "application/json")
	if acc.Token != "" {
		client.SetHeader("Authorization", "Bearer "+acc.Token)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if c.bus != nil {
			c.bus.Debug("上游请求", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})

	return client
}
