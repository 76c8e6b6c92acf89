package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	memactivity "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/activity"
	memclock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/clock"
	memlocalityrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/localityrepo"
	memmemberrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/memberrepo"
	memrunlock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/runlock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/members"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/ridermap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/standings"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/logging"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/metrics"
)

type testStack struct {
	handler    http.Handler
	members    *memmemberrepo.Repo
	localities *memlocalityrepo.Repo
	activity   *memactivity.Store
	locks      *memrunlock.Store
	clk        *memclock.ManualClock
}

func newTestStack(t *testing.T, opts RouterOptions) *testStack {
	t.Helper()

	st := &testStack{
		members:    memmemberrepo.NewRepo(),
		localities: memlocalityrepo.NewRepo(),
		activity:   memactivity.NewStore(),
		locks:      memrunlock.NewStore(),
		clk:        memclock.NewManualClock(time.Unix(1700000000, 0).UTC()),
	}
	_ = st.localities.Upsert(context.Background(), domain.Locality{Name: "Manresa", Comarca: "Bages", Province: "Barcelona", X: 1.8262, Y: 41.7286})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := logging.Discard()

	memberSvc := members.NewService(st.members, st.clk, members.Options{Logger: logger, Metrics: m})
	standingsSvc := standings.NewService(st.members, st.members.Scores(), st.activity, st.clk, standings.Options{Logger: logger, Metrics: m})
	mapSvc := ridermap.NewService(ridermap.Deps{
		Members:    st.members,
		Scores:     st.members.Scores(),
		Localities: st.localities,
		Locks:      st.locks,
		Clock:      st.clk,
	}, ridermap.Options{Logger: logger, Metrics: m})

	if opts.AuthMiddleware == nil {
		opts.AuthMiddleware = NewDevAuthMiddleware("")
	}
	opts.Gatherer = reg
	opts.Logger = logger
	st.handler = NewRouter(NewServer(memberSvc, standingsSvc, mapSvc, logger), opts)
	return st
}

type caller struct {
	subject string
	admin   bool
}

var (
	anna  = caller{subject: "sub-anna"}
	admin = caller{subject: "sub-admin", admin: true}
)

func (st *testStack) do(t *testing.T, c caller, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if c.subject != "" {
		req.Header.Set("X-Debug-Subject", c.subject)
	}
	if c.admin {
		req.Header.Set("X-Debug-Admin", "true")
	}
	rec := httptest.NewRecorder()
	st.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v\nbody=%s", err, rec.Body.String())
	}
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) ErrorResponse {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", rec.Code, wantStatus, rec.Body.String())
	}
	er := decodeJSON[ErrorResponse](t, rec)
	if er.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", er.Error.Code, wantCode, rec.Body.String())
	}
	return er
}

func registerBody(email, locality string) string {
	return `{"displayName":"Anna Puig","email":"` + email + `","locality":"` + locality + `",` +
		`"onboarding":{"licenseType":"2","licenseYears":5,"lifetimeKm":"3 km","priorRideCount":1,"sportinessGrade":"2"}}`
}

func domainID(id int64) domain.MemberID { return domain.MemberID(id) }
