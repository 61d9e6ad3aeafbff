package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestBridge(t *testing.T, handler http.HandlerFunc) (*BridgeClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	client := NewBridgeClient(server.Client(), newTestLogger(&buf), BridgeConfig{
		BaseURL: server.URL,
		APIID:   "12345",
		APIHash: "testhash",
	}, "/tmp/sessions/s1")
	return client, server
}

func writeOK(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("結果のエンコードに失敗: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bridgeEnvelope{OK: true, Result: raw})
}

func writeError(w http.ResponseWriter, be bridgeError) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bridgeEnvelope{OK: false, Error: &be})
}

func TestBridgeClient_Status_SendsCredentialsAndSessionPath(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/call" {
			t.Errorf("パス = %s, want /api/v1/call", r.URL.Path)
		}

		var req bridgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("リクエストのデコードに失敗: %v", err)
		}
		if req.Method != "session.status" {
			t.Errorf("method = %s, want session.status", req.Method)
		}
		if req.SessionPath != "/tmp/sessions/s1" {
			t.Errorf("session_path = %s, want /tmp/sessions/s1", req.SessionPath)
		}
		if req.APIID != "12345" || req.APIHash != "testhash" {
			t.Error("アプリケーション資格情報がリクエストに含まれるべき")
		}

		writeOK(t, w, wireStatus{Status: "logged_in"})
	})

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status がエラーを返した: %v", err)
	}
	if status != AuthLoggedIn {
		t.Errorf("status = %v, want %v", status, AuthLoggedIn)
	}
}

func TestBridgeClient_Status_UnknownValueMapsToUnknown(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeOK(t, w, wireStatus{Status: "two_factor_pending"})
	})

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status がエラーを返した: %v", err)
	}
	if status != AuthUnknown {
		t.Errorf("未知の状態は AuthUnknown に写像されるべき: got %v", status)
	}
}

func TestBridgeClient_SendCode_ReturnsSentCode(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		var req bridgeRequest
		json.NewDecoder(r.Body).Decode(&req)
		params, ok := req.Params.(map[string]any)
		if !ok || params["phone"] != "+818012345678" {
			t.Errorf("phoneパラメータ = %v, want +818012345678", req.Params)
		}
		writeOK(t, w, wireSentCode{Sent: true, CodeType: "app", Timeout: 120})
	})

	sent, err := client.SendCode(context.Background(), "+818012345678")
	if err != nil {
		t.Fatalf("SendCode がエラーを返した: %v", err)
	}
	if sent == nil {
		t.Fatal("SentCode が返されるべき")
	}
	if sent.Channel != CodeChannelApp {
		t.Errorf("配送経路 = %v, want %v", sent.Channel, CodeChannelApp)
	}
	if sent.Timeout != 120 {
		t.Errorf("タイムアウト = %d, want 120", sent.Timeout)
	}
}

func TestBridgeClient_SendCode_StructuredFloodWait(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, bridgeError{Type: "FLOOD_WAIT", Message: "too many requests", WaitSeconds: 300})
	})

	_, err := client.SendCode(context.Background(), "+818012345678")
	if err == nil {
		t.Fatal("レート制限時にエラーが返されるべき")
	}

	seconds, ok := AsFloodWait(err)
	if !ok {
		t.Fatalf("FloodWaitError が返されるべき: got %v", err)
	}
	if seconds != 300 {
		t.Errorf("待機秒数 = %d, want 300", seconds)
	}
}

func TestBridgeClient_SendCode_TextPatternFloodWait(t *testing.T) {
	// 構造化フィールドを返さない古いブリッジとの互換
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, bridgeError{Type: "RPC_ERROR", Message: "FLOOD_WAIT_42"})
	})

	_, err := client.SendCode(context.Background(), "+818012345678")
	seconds, ok := AsFloodWait(err)
	if !ok {
		t.Fatalf("エラーテキストから待機秒数が抽出されるべき: got %v", err)
	}
	if seconds != 42 {
		t.Errorf("待機秒数 = %d, want 42", seconds)
	}
}

func TestBridgeClient_LoggedUser_Unauthorized(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, bridgeError{Type: "UNAUTHORIZED", Message: "session is not authorized"})
	})

	_, err := client.LoggedUser(context.Background())
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("ErrNotAuthorized が返されるべき: got %v", err)
	}
}

func TestBridgeClient_SignIn_ReturnsResultingStatus(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		var req bridgeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "auth.signIn" {
			t.Errorf("method = %s, want auth.signIn", req.Method)
		}
		writeOK(t, w, wireStatus{Status: "logged_in"})
	})

	status, err := client.SignIn(context.Background(), "12345")
	if err != nil {
		t.Fatalf("SignIn がエラーを返した: %v", err)
	}
	if status != AuthLoggedIn {
		t.Errorf("status = %v, want %v", status, AuthLoggedIn)
	}
}

func TestBridgeClient_RequestQR_EmptyTokenIsError(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeOK(t, w, wireQRToken{URL: ""})
	})

	_, err := client.RequestQR(context.Background())
	if err == nil {
		t.Fatal("空のQRトークンでエラーが返されるべき")
	}
}

func TestBridgeClient_ListDialogs_MapsPeerKinds(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		writeOK(t, w, wireDialogs{Peers: []wirePeer{
			{ID: 100, Type: "channel", Title: "News", Username: "newsroom"},
			{ID: 200, Type: "user", Title: "Alice"},
			{ID: 300, Type: "bot_thread", Title: "?"},
		}})
	})

	peers, err := client.ListDialogs(context.Background())
	if err != nil {
		t.Fatalf("ListDialogs がエラーを返した: %v", err)
	}
	if len(peers) != 3 {
		t.Fatalf("ピア数 = %d, want 3", len(peers))
	}
	if peers[0].Kind != PeerKindChannel {
		t.Errorf("peers[0].Kind = %v, want %v", peers[0].Kind, PeerKindChannel)
	}
	if peers[1].Kind != PeerKindUser {
		t.Errorf("peers[1].Kind = %v, want %v", peers[1].Kind, PeerKindUser)
	}
	if peers[2].Kind != PeerKindUnknown {
		t.Errorf("未知種別は PeerKindUnknown に写像されるべき: got %v", peers[2].Kind)
	}
}

func TestBridgeClient_HTTPErrorStatus(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Status(context.Background())
	if err == nil {
		t.Fatal("HTTPエラー時にエラーが返されるべき")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("エラーメッセージにHTTPステータスが含まれるべき: %s", err.Error())
	}
}

func TestBridgeClient_InvalidJSONResponse(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.Status(context.Background())
	if err == nil {
		t.Fatal("不正JSONレスポンス時にエラーが返されるべき")
	}
}

func TestBridgeClient_ContextCancelled(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Status(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled エラーであるべき: got %v", err)
	}
}

func TestBridgeClient_ExportInviteLink(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		var req bridgeRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "channels.exportInvite" {
			t.Errorf("method = %s, want channels.exportInvite", req.Method)
		}
		writeOK(t, w, wireInviteLink{Link: "https://t.example/+abc123"})
	})

	link, err := client.ExportInviteLink(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExportInviteLink がエラーを返した: %v", err)
	}
	if link != "https://t.example/+abc123" {
		t.Errorf("招待リンク = %s", link)
	}
}

func TestBridgeClient_SendMessage(t *testing.T) {
	client, _ := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		var req bridgeRequest
		json.NewDecoder(r.Body).Decode(&req)
		params := req.Params.(map[string]any)
		if params["peer"] != "@newsroom" {
			t.Errorf("peer = %v, want @newsroom", params["peer"])
		}
		writeOK(t, w, wireMessageRef{ID: 7, PeerID: 100})
	})

	ref, err := client.SendMessage(context.Background(), "@newsroom", "hello")
	if err != nil {
		t.Fatalf("SendMessage がエラーを返した: %v", err)
	}
	if ref.ID != 7 || ref.PeerID != 100 {
		t.Errorf("MessageRef = %+v", ref)
	}
}
