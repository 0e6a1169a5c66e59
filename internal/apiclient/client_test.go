package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type staticTokens string

func (s staticTokens) CurrentToken() string { return string(s) }

func newTestClient(t *testing.T, token string, handler http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Tokens: staticTokens(token)}), &hits
}

func TestClient_NoTokenFailsLocally(t *testing.T) {
	c, hits := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the network without a token")
	})

	_, res := c.Check(context.Background())
	if res.OK {
		t.Fatal("expected failure without a session")
	}
	if res.Status != 0 {
		t.Fatalf("local precondition failure must have status 0, got %d", res.Status)
	}
	if res.ErrorMessage() != "not authenticated" {
		t.Fatalf("unexpected message: %q", res.ErrorMessage())
	}
	if hits.Load() != 0 {
		t.Fatalf("expected 0 network hits, got %d", hits.Load())
	}
}

func TestClient_AuthorizationVerbatim(t *testing.T) {
	c, _ := newTestClient(t, "raw-token-123", func(w http.ResponseWriter, r *http.Request) {
		// el token viaja tal cual, sin "Bearer " ni otro scheme
		if got := r.Header.Get("Authorization"); got != "raw-token-123" {
			t.Errorf("expected verbatim token, got %q", got)
		}
		w.Write([]byte(`{"code":200,"message":"ok","data":{"identityId":"acc-1","name":"Admin"}}`))
	})

	profile, res := c.Check(context.Background())
	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if profile.IdentityID != "acc-1" || profile.Name != "Admin" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestClient_EnvelopeCodeBeatsHTTPStatus(t *testing.T) {
	// HTTP 200 pero code 403 en el envelope: fallo
	c, _ := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":403,"message":"forbidden"}`))
	})

	_, res := c.Info(context.Background())
	if res.OK {
		t.Fatal("envelope code >= 400 must fail even on HTTP 200")
	}
	if res.Status != 200 || res.Code != 403 {
		t.Fatalf("expected status 200 / code 403, got %d / %d", res.Status, res.Code)
	}
	if res.ErrorMessage() != "forbidden" {
		t.Fatalf("expected server message, got %q", res.ErrorMessage())
	}
}

func TestClient_TopLevelErrorField(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"boom"}`))
	})

	_, res := c.Info(context.Background())
	if res.OK {
		t.Fatal("a top-level error field must fail the result")
	}
	if res.ErrorMessage() != "boom" {
		t.Fatalf("expected error field as message, got %q", res.ErrorMessage())
	}
}

func TestClient_NonJSONBody(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	res := c.DeleteSubAccount(context.Background(), "acc-1")
	if res.OK {
		t.Fatal("expected failure on HTTP 502")
	}
	if res.Body != nil {
		t.Fatal("non-JSON body must leave Body nil")
	}
	if res.Text != "<html>bad gateway</html>" {
		t.Fatalf("raw body must be preserved in Text, got %q", res.Text)
	}
	if res.ErrorMessage() != "HTTP 502" {
		t.Fatalf("expected generic HTTP message, got %q", res.ErrorMessage())
	}
}

func TestClient_TokenExpiredDetection(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":401,"message":"Request failed: Invalid or Expired Token"}`))
	})

	_, res := c.Check(context.Background())
	if res.OK {
		t.Fatal("expected failure")
	}
	// match por substring, case-insensitive
	if !res.TokenExpired() {
		t.Fatal("expected TokenExpired() = true")
	}

	other := Result{Message: "some other 401"}
	if other.TokenExpired() {
		t.Fatal("unrelated message must not look expired")
	}

	t.Logf("✅ token expiry detected by substring match")
}

func TestClient_TransportFailure(t *testing.T) {
	// puerto cerrado: fallo de transporte, status 0, Text con el error de red
	c := New(Config{BaseURL: "http://127.0.0.1:1", Tokens: staticTokens("tok")})

	res := c.DisconnectSubAccount(context.Background(), "acc-1")
	if res.OK || res.Status != 0 {
		t.Fatalf("expected transport failure with status 0, got %+v", res)
	}
	if res.Text == "" || res.ErrorMessage() == "" {
		t.Fatal("transport error must surface in Text")
	}
}

func TestClient_MalformedTypedResponse(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		// envelope OK pero data con la forma equivocada
		w.Write([]byte(`{"code":200,"message":"ok","data":[1,2,3]}`))
	})

	_, res := c.Check(context.Background())
	if res.OK {
		t.Fatal("undecodable data must degrade to failure")
	}
	if res.Message != "malformed check response" {
		t.Fatalf("unexpected message: %q", res.Message)
	}
}

func TestClient_LoginNeedsNoToken(t *testing.T) {
	c, hits := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send an Authorization header")
		}
		w.Write([]byte(`{"code":200,"message":"ok","data":{"token":"fresh","profile":{"identityId":"acc-1"}}}`))
	})

	data, res := c.Login(context.Background(), "acc-1", "pw")
	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if data.Token != "fresh" || data.Profile.IdentityID != "acc-1" {
		t.Fatalf("unexpected login data: %+v", data)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly 1 request, got %d", hits.Load())
	}
}

func TestClient_EnvelopelessJSON(t *testing.T) {
	c, _ := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"identityId":"acc-1","name":"Plain"}`))
	})

	profile, res := c.Check(context.Background())
	if !res.OK {
		t.Fatalf("plain JSON 200 must be OK, got %+v", res)
	}
	if profile.IdentityID != "acc-1" || profile.Name != "Plain" {
		t.Fatalf("whole body must decode as data, got %+v", profile)
	}
}
