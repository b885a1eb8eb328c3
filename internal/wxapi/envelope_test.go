package wxapi

import (
	"errors"
	"testing"

	"wxassist/internal/model"
)

func TestDecodeEnvelopeSuccess(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"string code", `{"code":"1000","msg":"ok","data":{"wxId":"wxid_abc"}}`},
		{"integer code", `{"code":1000,"data":{"wxId":"wxid_abc"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := model.Account{ID: "a1", CallCount: 3}
			env, updated, err := DecodeEnvelope([]byte(tc.body), acc)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !env.Success() {
				t.Fatalf("expected success for %s", tc.body)
			}
			if string(env.Data) != `{"wxId":"wxid_abc"}` {
				t.Fatalf("data not returned verbatim: %s", env.Data)
			}
			if updated.CallCount != 4 {
				t.Fatalf("call count = %d, want 4", updated.CallCount)
			}
			if updated.Status != acc.Status {
				t.Fatalf("status changed on success: %s", updated.Status)
			}
		})
	}
}

func TestDecodeEnvelopeInvalidJSON(t *testing.T) {
	acc := model.Account{CallCount: 1}
	_, updated, err := DecodeEnvelope([]byte("<html>502</html>"), acc)
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
	// 解析失败不算一次调用。
	if updated.CallCount != 1 {
		t.Fatalf("call count = %d, want 1", updated.CallCount)
	}
}

func TestDecodeEnvelopeErrorMessageFallback(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"code":"5000","message":"主消息","msg":"次消息"}`, "主消息"},
		{"msg fallback", `{"code":"5000","msg":"次消息"}`, "次消息"},
		{"generic fallback", `{"code":"5000"}`, "unknown error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, updated, err := DecodeEnvelope([]byte(tc.body), model.Account{})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Message != tc.want {
				t.Fatalf("message = %q, want %q", apiErr.Message, tc.want)
			}
			if apiErr.Code != "5000" {
				t.Fatalf("code = %q, want 5000", apiErr.Code)
			}
			if updated.CallCount != 1 {
				t.Fatalf("call count = %d, want 1", updated.CallCount)
			}
			if updated.Status == model.StatusError {
				t.Fatalf("non-auth code must not mark account errored")
			}
		})
	}
}

func TestDecodeEnvelopeAuthFailureMarksAccount(t *testing.T) {
	for _, body := range []string{
		`{"code":401,"msg":"unauthorized"}`,
		`{"code":"401"}`,
		`{"code":403}`,
		`{"code":"403"}`,
		`{"code":"AUTH_FAILED","message":"token 失效"}`,
	} {
		acc := model.Account{Status: model.StatusOnline}
		_, updated, err := DecodeEnvelope([]byte(body), acc)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("body %s: expected APIError, got %v", body, err)
		}
		if updated.Status != model.StatusError {
			t.Fatalf("body %s: status = %s, want error", body, updated.Status)
		}
		if updated.CallCount != 1 {
			t.Fatalf("body %s: call count = %d, want 1", body, updated.CallCount)
		}
	}
}

func TestEnvelopeCodeString(t *testing.T) {
	if (Envelope{Code: float64(1000)}).CodeString() != "1000" {
		t.Fatalf("float 1000 should normalize to \"1000\"")
	}
	if (Envelope{Code: "AUTH_FAILED"}).CodeString() != "AUTH_FAILED" {
		t.Fatalf("string code should pass through")
	}
	if (Envelope{}).CodeString() != "" {
		t.Fatalf("nil code should normalize to empty string")
	}
}
