package lessons_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edutrack-uz/portal-client/cache"
	"github.com/edutrack-uz/portal-client/dashboard"
	"github.com/edutrack-uz/portal-client/lessons"
	"github.com/edutrack-uz/portal-client/session"
	"github.com/edutrack-uz/portal-client/storage/storefake"
	"github.com/edutrack-uz/portal-client/transport"
)

type testFixture struct {
	service *lessons.Service
	server  *httptest.Server

	mu          sync.Mutex
	hits        map[string]int
	status      *lessons.AttendanceStatus
	assignment  bool
	markBody    map[string]any
	markBlock   chan struct{}
	submitFails bool
	submit      *submitRequest
}

type submitRequest struct {
	contentType string
	jsonBody    []byte
	fields      map[string]string
	files       map[string]string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{hits: map[string]int{}, assignment: true}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/lessons/", func(w http.ResponseWriter, r *http.Request) {
		f.count(r.URL.Path)
		f.mu.Lock()
		status := f.status
		withAssignment := f.assignment
		f.mu.Unlock()

		resp := lessons.LessonsResponse{Envelope: transport.Envelope{Success: true}}
		resp.Data.Attendance = lessons.AttendanceWindow{
			TrackID:  77,
			OpensAt:  time.Now().Add(-5 * time.Minute),
			ClosesAt: time.Now().Add(10 * time.Minute),
			Status:   status,
		}
		if withAssignment {
			resp.Data.Assignments.Current = &lessons.Assignment{ID: 7, Deadline: time.Now().Add(24 * time.Hour)}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/dashboard/", func(w http.ResponseWriter, r *http.Request) {
		f.count(r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"enrollment":{"balance":120}}}`))
	})
	mux.HandleFunc("/api/attendance/mark/", func(w http.ResponseWriter, r *http.Request) {
		f.count(r.URL.Path)
		f.mu.Lock()
		block := f.markBlock
		f.mu.Unlock()
		if block != nil {
			<-block
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.markBody = body
		f.mu.Unlock()
		if body["keyword"] != "golang" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"wrong keyword"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"xp":10,"coins":5,"message":"marked"}}`))
	})

	mux.HandleFunc("/api/bot/submit-assignment/", func(w http.ResponseWriter, r *http.Request) {
		f.count(r.URL.Path)
		f.mu.Lock()
		fails := f.submitFails
		f.mu.Unlock()
		if fails {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"upload failed"}`))
			return
		}
		submit := submitRequest{contentType: r.Header.Get("Content-Type")}
		if strings.HasPrefix(submit.contentType, "multipart/form-data") {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			submit.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				submit.fields[k] = v[0]
			}
			submit.files = map[string]string{}
			for _, fh := range r.MultipartForm.File["files"] {
				file, err := fh.Open()
				require.NoError(t, err)
				content, err := io.ReadAll(file)
				require.NoError(t, err)
				_ = file.Close()
				submit.files[fh.Filename] = string(content)
			}
		} else {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			submit.jsonBody = body
		}
		f.mu.Lock()
		f.submit = &submit
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true,"submission_id":901}`))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	client := transport.NewClient(f.server.URL)
	sess, err := session.NewManager(client, storefake.NewFakeStore())
	require.NoError(t, err)
	store, err := cache.New(sess)
	require.NoError(t, err)
	dash, err := dashboard.NewService(store, sess)
	require.NoError(t, err)
	svc, err := lessons.NewService(store, sess, dash)
	require.NoError(t, err)
	f.service = svc
	return f
}

func (f *testFixture) count(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[path]++
}

func (f *testFixture) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func TestFetchExposesState(t *testing.T) {
	f := setupTestFixture(t)

	_, ok := f.service.AttendanceState()
	require.False(t, ok) // nothing loaded yet

	resp, err := f.service.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(77), resp.Data.Attendance.TrackID)

	state, ok := f.service.AttendanceState()
	require.True(t, ok)
	require.Equal(t, lessons.StateOpen, state)
}

func TestMarkAttendanceSuccessRefetchesLessonsAndDashboard(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.service.Fetch(context.Background())
	require.NoError(t, err)

	resp, err := f.service.MarkAttendance(context.Background(), "golang")
	require.NoError(t, err)
	require.Equal(t, 10, resp.Data.XP)
	require.Equal(t, 5, resp.Data.Coins)

	f.mu.Lock()
	markBody := f.markBody
	f.mu.Unlock()
	require.Equal(t, float64(77), markBody["track_id"])
	require.Equal(t, "golang", markBody["keyword"])

	// Initial fetch plus the post-mutation refetch.
	require.Equal(t, 2, f.hitCount("/api/lessons/"))
	require.Equal(t, 1, f.hitCount("/api/dashboard/"))
}

func TestMarkAttendanceWrongKeywordSurfacesServerMessage(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.service.Fetch(context.Background())
	require.NoError(t, err)

	_, err = f.service.MarkAttendance(context.Background(), "wrong")
	require.Error(t, err)
	require.Equal(t, "wrong keyword", transport.AsError(err).Message)

	// No refetch on failure; the window stays open.
	require.Equal(t, 1, f.hitCount("/api/lessons/"))
	state, ok := f.service.AttendanceState()
	require.True(t, ok)
	require.Equal(t, lessons.StateOpen, state)
}

func TestMarkAttendanceRejectedWhenAlreadyDecided(t *testing.T) {
	f := setupTestFixture(t)
	f.mu.Lock()
	f.status = statusPtr(lessons.StatusAttended)
	f.mu.Unlock()
	_, err := f.service.Fetch(context.Background())
	require.NoError(t, err)

	_, err = f.service.MarkAttendance(context.Background(), "golang")
	require.Error(t, err)
	require.Equal(t, transport.KindValidation, transport.AsError(err).Kind)
	require.Zero(t, f.hitCount("/api/attendance/mark/"))
}

func TestMarkAttendanceRequiresKeyword(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.service.Fetch(context.Background())
	require.NoError(t, err)

	_, err = f.service.MarkAttendance(context.Background(), "")
	require.Error(t, err)
	require.Zero(t, f.hitCount("/api/attendance/mark/"))
}

func TestMarkAttendanceInFlightReportsSubmitting(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.service.Fetch(context.Background())
	require.NoError(t, err)

	block := make(chan struct{})
	f.mu.Lock()
	f.markBlock = block
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := f.service.MarkAttendance(context.Background(), "golang")
		done <- err
	}()

	require.Eventually(t, func() bool {
		state, ok := f.service.AttendanceState()
		return ok && state == lessons.StateSubmitting
	}, time.Second, 5*time.Millisecond)

	// A second mark while one is in flight is rejected locally.
	_, err = f.service.MarkAttendance(context.Background(), "golang")
	require.Error(t, err)

	f.mu.Lock()
	f.markBlock = nil
	f.mu.Unlock()
	close(block)
	require.NoError(t, <-done)
}
