package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"synthdlg/pkg/contract"
)

func newTestClient(t *testing.T, h http.HandlerFunc) contract.Generator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	g, err := New(json.RawMessage(`{"base_url":"` + srv.URL + `","model":"llama3"}`))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	return g
}

// TestGenerateOK 请求体形状与响应提取
func TestGenerateOK(t *testing.T) {
	g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path 错误: %s", r.URL.Path)
		}
		var req olReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "llama3" || req.Stream || req.Options.NumPredict != 128 {
			t.Errorf("请求体错误: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(olResp{Response: "generated text", Done: true})
	})
	raw, err := g.Generate(context.Background(), contract.GenerationRequest{
		Prompt: "p",
		Params: contract.GenParams{MaxOutputTokens: 128},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if raw.Text != "generated text" {
		t.Fatalf("响应错误: %q", raw.Text)
	}
}

// TestStatusMapping 状态码 → 哨兵
func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, contract.ErrRateLimited},
		{http.StatusInternalServerError, contract.ErrBackendUnavailable},
		{http.StatusNotFound, contract.ErrConfig},
	}
	for _, tc := range cases {
		g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := g.Generate(context.Background(), contract.GenerationRequest{Prompt: "p"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v want %v", tc.status, err, tc.want)
		}
	}
}

// TestConnectionRefused 本地后端未启动 → ErrBackendUnavailable
func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	g, err := New(json.RawMessage(`{"base_url":"` + url + `","model":"llama3"}`))
	if err != nil {
		t.Fatalf("构造失败: %v", err)
	}
	if _, err := g.Generate(context.Background(), contract.GenerationRequest{Prompt: "p"}); !errors.Is(err, contract.ErrBackendUnavailable) {
		t.Fatalf("期望 ErrBackendUnavailable 实得 %v", err)
	}
}

// TestEmptyResponse 空 response → ErrResponseInvalid
func TestEmptyResponse(t *testing.T) {
	g := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(olResp{Done: true})
	})
	if _, err := g.Generate(context.Background(), contract.GenerationRequest{Prompt: "p"}); !errors.Is(err, contract.ErrResponseInvalid) {
		t.Fatalf("期望 ErrResponseInvalid 实得 %v", err)
	}
}

// TestModelRequired 缺省 model → ErrConfig
func TestModelRequired(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, contract.ErrConfig) {
		t.Fatalf("期望 ErrConfig 实得 %v", err)
	}
}
