package transport_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edutrack-uz/portal-client/transport"
)

func TestDoPostJSON(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	}))
	defer srv.Close()

	client := transport.NewClient(srv.URL)
	resp, err := client.Do(context.Background(), transport.Request{
		Endpoint: "/api/login/",
		Method:   http.MethodPost,
		Body:     map[string]string{"student_code": "YT-E000123"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "application/json", gotContentType)
	require.JSONEq(t, `{"student_code":"YT-E000123"}`, string(gotBody))

	var env transport.Envelope
	require.NoError(t, resp.Decode(&env))
	require.True(t, env.Success)
}

func TestDoMultipart(t *testing.T) {
	type received struct {
		fields map[string]string
		files  map[string]string
	}
	var got received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got.fields[k] = v[0]
		}
		got.files = map[string]string{}
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			require.NoError(t, err)
			content, err := io.ReadAll(f)
			require.NoError(t, err)
			_ = f.Close()
			got.files[fh.Filename] = string(content)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := transport.NewClient(srv.URL)
	_, err := client.Do(context.Background(), transport.Request{
		Endpoint: "/api/bot/submit-assignment/",
		Method:   http.MethodPost,
		Body: map[string]any{
			"assignment_id": 42,
			"comment":       "done",
			"attachments":   []map[string]string{{"type": "file", "name": "hw.pdf"}},
		},
		Files:     []transport.File{{Name: "hw.pdf", Content: []byte("pdf-bytes")}},
		FileField: "files",
	})
	require.NoError(t, err)

	// Scalars are stringified individually, objects become one
	// JSON-encoded field value.
	require.Equal(t, "42", got.fields["assignment_id"])
	require.Equal(t, "done", got.fields["comment"])
	require.JSONEq(t, `[{"type":"file","name":"hw.pdf"}]`, got.fields["attachments"])
	require.Equal(t, map[string]string{"hw.pdf": "pdf-bytes"}, got.files)
}

func TestDoHTTPErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"wrong keyword"}`))
	}))
	defer srv.Close()

	client := transport.NewClient(srv.URL)
	_, err := client.Do(context.Background(), transport.Request{Endpoint: "/api/attendance/mark/", Method: http.MethodPost})
	require.Error(t, err)

	terr := transport.AsError(err)
	require.Equal(t, transport.KindHTTP, terr.Kind)
	require.Equal(t, http.StatusBadRequest, terr.Status)
	require.Equal(t, "wrong keyword", terr.Message)
	require.JSONEq(t, `{"message":"wrong keyword"}`, string(terr.Data))
	require.True(t, transport.IsStatus(err, http.StatusBadRequest))
}

func TestDoNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := transport.NewClient(srv.URL)
	_, err := client.Do(context.Background(), transport.Request{Endpoint: "/api/dashboard/"})
	require.Error(t, err)

	terr := transport.AsError(err)
	require.Equal(t, transport.KindNetwork, terr.Kind)
	require.Zero(t, terr.Status)
}

func TestCheckEnvelope(t *testing.T) {
	require.Nil(t, transport.CheckEnvelope(transport.Envelope{Success: true}))
	require.Nil(t, transport.CheckEnvelope("not enveloped"))

	err := transport.CheckEnvelope(transport.Envelope{Success: false, Message: "enrollment not found"})
	require.NotNil(t, err)
	require.Equal(t, transport.KindApp, err.Kind)
	require.Equal(t, "enrollment not found", err.Message)
}

func TestResponseDecode(t *testing.T) {
	resp := &transport.Response{Body: json.RawMessage(`{"token":"abc"}`)}
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, resp.Decode(&out))
	require.Equal(t, "abc", out.Token)
}
