// mock 是本地联调用的假上游：按 {code, msg, data} 信封返回群助手 API 的常用接口。
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

var (
	mu     sync.Mutex
	online = map[string]bool{}
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	mux.HandleFunc("/mock/open/getLoginQrCode", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := randString(10)
		writeEnvelope(w, map[string]any{
			"qrCodeUrl": "https://login.weixin.qq.com/l/" + id,
			"qrCodeId":  id,
			"expiresIn": 300,
		})
	})

	mux.HandleFunc("/mock/open/checkLogin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		deviceID := readDeviceID(r)

		// 1/3 概率还没扫码，模拟轮询等待。
		if rand.Intn(3) == 0 {
			writeError(w, "2001", "等待扫码确认")
			return
		}

		mu.Lock()
		online[deviceID] = true
		mu.Unlock()

		writeEnvelope(w, map[string]any{
			"wxId":     "wxid_" + randString(8),
			"nickname": "测试账号",
			"avatar":   "https://wx.qlogo.cn/mmhead/" + randString(16),
		})
	})

	mux.HandleFunc("/mock/open/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		deviceID := readDeviceID(r)
		mu.Lock()
		online[deviceID] = false
		mu.Unlock()
		writeEnvelope(w, map[string]any{"loggedOut": true})
	})

	mux.HandleFunc("/mock/open/isOnline", func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.URL.Query().Get("deviceId")
		mu.Lock()
		v := online[deviceID]
		mu.Unlock()
		writeEnvelope(w, map[string]any{"online": v})
	})

	mux.HandleFunc("/mock/open/sendText", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["toUser"] == nil || body["toUser"] == "" {
			writeError(w, "3001", "toUser 不能为空")
			return
		}
		writeEnvelope(w, map[string]any{
			"msgId":  randString(12),
			"sentAt": time.Now().UnixMilli(),
		})
	})

	mux.HandleFunc("/mock/open/getFriendList", func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, []map[string]any{
			{"wxId": "wxid_" + randString(8), "nickname": "好友A", "remark": ""},
			{"wxId": "wxid_" + randString(8), "nickname": "好友B", "remark": "同事"},
		})
	})

	mux.HandleFunc("/mock/open/getGroupList", func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, []map[string]any{
			{"groupId": randString(10) + "@chatroom", "name": "测试群1", "memberCount": 35},
			{"groupId": randString(10) + "@chatroom", "name": "测试群2", "memberCount": 128},
		})
	})

	// 鉴权失败示例，用来联调账号的 error 标记。
	mux.HandleFunc("/mock/open/expiredToken", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, "401", "token 已失效")
	})

	log.Printf("mock upstream listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": "1000",
		"msg":  "success",
		"data": data,
	})
}

func writeError(w http.ResponseWriter, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": code,
		"msg":  msg,
	})
}

func readDeviceID(r *http.Request) string {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	if v, ok := body["deviceId"].(string); ok {
		return v
	}
	return ""
}

func randString(n int) string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))]
	}
	return string(b)
}
