package itest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/httpapi"
	memactivity "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/activity"
	memclock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/clock"
	memlocalityrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/localityrepo"
	memmemberrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/memberrepo"
	memrunlock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/runlock"
	pgactivity "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/activity"
	pglocalityrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/localityrepo"
	pgmemberrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/memberrepo"
	pgrunlock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/runlock"
	pgscorerepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/scorerepo"
	postgres_testutil "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/testutil"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/members"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/ridermap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/standings"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/logging"
	activityport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/activity"
	localityrepoport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
	memberrepoport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
	runlockport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
	scorerepoport "github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		memberRepo   memberrepoport.Repository
		scoreRepo    scorerepoport.Repository
		localityRepo localityrepoport.Repository
		activity     activityport.Store
		locks        runlockport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		memberRepo = pgmemberrepo.NewRepo(pool)
		scoreRepo = pgscorerepo.NewRepo(pool)
		localityRepo = pglocalityrepo.NewRepo(pool)
		activity = pgactivity.NewStore(pool)
		locks = pgrunlock.NewStore(pool)
	case backendMemory:
		mr := memmemberrepo.NewRepo()
		memberRepo = mr
		scoreRepo = mr.Scores()
		localityRepo = memlocalityrepo.NewRepo()
		activity = memactivity.NewStore()
		locks = memrunlock.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	if err := localityRepo.Upsert(context.Background(), domain.Locality{
		Name: "Manresa", Comarca: "Bages", Province: "Barcelona", X: 1.8262, Y: 41.7286,
	}); err != nil {
		t.Fatalf("seed locality: %v", err)
	}

	logger := logging.Discard()
	memberSvc := members.NewService(memberRepo, clk, members.Options{Logger: logger})
	standingsSvc := standings.NewService(memberRepo, scoreRepo, activity, clk, standings.Options{Logger: logger})
	mapSvc := ridermap.NewService(ridermap.Deps{
		Members:    memberRepo,
		Scores:     scoreRepo,
		Localities: localityRepo,
		Locks:      locks,
		Clock:      clk,
	}, ridermap.Options{Logger: logger})
	api := httpapi.NewServer(memberSvc, standingsSvc, mapSvc, logger)

	// Integration tests use the dev auth middleware to stay fully local and deterministic.
	// We pass empty default subject to ensure requests MUST provide X-Debug-Subject, allowing
	// auth-failure coverage.
	authMW := httpapi.NewDevAuthMiddleware("")
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{AuthMiddleware: authMW, Logger: logger})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string, body any) (int, []byte, http.Header) {
	t.Helper()
	return s.doJSONAs(t, method, path, subject, false, body)
}

func (s *testServer) doJSONAs(t *testing.T, method string, path string, subject string, admin bool, body any) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	if admin {
		req.Header.Set("X-Debug-Admin", "true")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
