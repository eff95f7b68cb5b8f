package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL()
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Options(t *testing.T) {
	p, _ := New("key",
		WithModel("base"),
		WithLanguage("de-DE"),
		WithKeywords(Keyword{Keyword: "Parrot", Boost: 5}, Keyword{Keyword: "Polly", Boost: 1.5}),
	)
	rawURL, _ := p.buildURL()
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	kws := q["keywords"]
	if len(kws) != 2 || kws[0] != "Parrot:5" || kws[1] != "Polly:1.5" {
		t.Errorf("keywords = %v", kws)
	}
}

func TestParseFinal(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		want   string
		wantOK bool
	}{
		{
			name:   "final",
			msg:    `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there","confidence":0.9}]}}`,
			want:   "hello there",
			wantOK: true,
		},
		{
			name: "interim",
			msg:  `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
		},
		{name: "metadata", msg: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", msg: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "garbage", msg: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseFinal([]byte(tt.msg))
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseFinal = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// fakeDeepgram accepts one streaming session, counts the audio bytes it
// receives and answers CloseStream with the given messages.
func fakeDeepgram(t *testing.T, replies []string, gotBytes *atomic.Int64, gotAuth *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				gotBytes.Add(int64(len(msg)))
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				break
			}
		}
		for _, m := range replies {
			if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTranscribe_JoinsFinalResults(t *testing.T) {
	var (
		gotBytes atomic.Int64
		gotAuth  atomic.Value
	)
	srv := fakeDeepgram(t, []string{
		`{"type":"Metadata"}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there."}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"How are you?"}]}}`,
	}, &gotBytes, &gotAuth)

	p, _ := New("secret", WithEndpoint(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 0.5 s at 48 kHz resamples to 8000 samples at 16 kHz.
	text, err := p.Transcribe(ctx, make([]float32, 24000), 48000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "hello there. How are you?", text)
	assertEqual(t, "auth", "Token secret", gotAuth.Load().(string))
	if n := gotBytes.Load(); n != 8000*2 {
		t.Errorf("audio bytes = %d, want %d", n, 8000*2)
	}
}

func TestTranscribe_EmptySegmentSkipsDial(t *testing.T) {
	p, _ := New("k", WithEndpoint("ws://127.0.0.1:1"))
	text, err := p.Transcribe(context.Background(), nil, 16000)
	if err != nil || text != "" {
		t.Errorf("Transcribe(nil) = (%q, %v)", text, err)
	}
}

func TestTranscribe_AbnormalCloseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusPolicyViolation, "bad auth")
	}))
	defer srv.Close()

	p, _ := New("k", WithEndpoint(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.Transcribe(ctx, make([]float32, 1600), 16000); err == nil {
		t.Fatal("expected error for policy-violation close")
	}
}

func TestTranscribe_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p, _ := New("k", WithEndpoint(wsURL(srv)))
	if _, err := p.Transcribe(context.Background(), make([]float32, 160), 16000); err == nil {
		t.Fatal("expected dial error")
	}
}
