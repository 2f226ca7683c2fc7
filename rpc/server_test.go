package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vwtips/core/state"
	"vwtips/native/tips"
	"vwtips/storage"
)

var (
	testAdmin    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testSender   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	testFeed     = common.HexToAddress("0x694AA1769357215DE4FAC081bf1f309aDC325306")
)

type fixture struct {
	engine *tips.Engine
	feed   *tips.ManualFeed
	server *httptest.Server
}

func newFixture(t *testing.T, initialize bool, limit RateLimit) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	mgr := state.NewManager(db)
	feed := tips.NewManualFeed()
	feed.Set(testFeed, big.NewInt(250000000000), time.Now())

	engine := tips.NewEngine()
	engine.SetState(mgr)
	engine.SetContractAddress(testContract)
	engine.SetPriceFeed(tips.NewPriceFeedAdapter(feed, tips.DefaultFeedDecimals, 0))
	if initialize {
		require.NoError(t, engine.Initialize(testAdmin, testFeed))
		require.NoError(t, mgr.SetBalance(testSender, big.NewInt(10_000)))
		_, err := engine.Tip(context.Background(), testSender, common.HexToAddress("0xdd"), big.NewInt(5_000))
		require.NoError(t, err)
	}

	srv := NewServer(engine, ServerConfig{Network: "localhost", ChainID: 1337, RateLimit: limit}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{engine: engine, feed: feed, server: ts}
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, false, RateLimit{})
	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, true, RateLimit{})
	var status StatusResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/v1/tips", &status))
	require.Equal(t, testFeed.Hex(), status.PriceFeed)
	require.Equal(t, uint64(10), status.FeeRate)
	require.Equal(t, uint64(1000), status.FeeScale)
	require.Equal(t, "50", status.LedgerBalance)
	require.Equal(t, uint64(1337), status.ChainID)
	require.Equal(t, []string{strings.ToLower(testAdmin.Hex())}, status.Admins)
}

func TestStatusBeforeInitialize(t *testing.T) {
	f := newFixture(t, false, RateLimit{})
	var body errorResponse
	require.Equal(t, http.StatusServiceUnavailable, getJSON(t, f.server.URL+"/v1/tips", &body))
	require.Contains(t, body.Error, "not initialized")
}

func TestRateEndpoint(t *testing.T) {
	f := newFixture(t, true, RateLimit{})
	var rate RateResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/v1/tips/rate", &rate))
	require.Equal(t, "250000000000", rate.Value)
	require.Equal(t, "2500.00000000", rate.Price)

	f.feed.SetError(testFeed, errors.New("feed paused"))
	var body errorResponse
	require.Equal(t, http.StatusBadGateway, getJSON(t, f.server.URL+"/v1/tips/rate", &body))
	require.Contains(t, body.Error, "feed paused")
}

func TestRoleEndpoints(t *testing.T) {
	f := newFixture(t, true, RateLimit{})
	var role RoleResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/v1/tips/roles/DEFAULT_ADMIN_ROLE/"+testAdmin.Hex(), &role))
	require.True(t, role.HasRole)

	require.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/v1/tips/roles/"+tips.DefaultAdminRole.Hex()+"/"+testSender.Hex(), &role))
	require.False(t, role.HasRole)

	var members RoleMembersResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/v1/tips/roles/admin", &members))
	require.Len(t, members.Members, 1)

	var body errorResponse
	require.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/v1/tips/roles/0x12/"+testAdmin.Hex(), &body))
	require.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/v1/tips/roles/admin/not-an-address", &body))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, true, RateLimit{RatePerSecond: 0.001, Burst: 1})
	require.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/v1/tips", nil))
	var body errorResponse
	require.Equal(t, http.StatusTooManyRequests, getJSON(t, f.server.URL+"/v1/tips", &body))

	// health and metrics are never throttled
	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true, RateLimit{})
	require.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/v1/tips", nil))
	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "tips_http_requests_total")
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("admin")
	require.NoError(t, err)
	require.Equal(t, tips.DefaultAdminRole, role)

	hash := common.HexToHash("0x9f2df0fed2c77648de5860a4cc508cd0818c85b8b8a1ab4ceeef8d981c8956a6")
	role, err = ParseRole(hash.Hex())
	require.NoError(t, err)
	require.Equal(t, hash, role)

	_, err = ParseRole("0xzz")
	require.Error(t, err)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	require.Equal(t, "10.0.0.1", clientID(req))
	req.Header.Set("X-Forwarded-For", "192.168.1.7, 10.0.0.1")
	require.Equal(t, "192.168.1.7", clientID(req))
	req.Header.Set("X-Real-IP", "172.16.0.9")
	require.Equal(t, "172.16.0.9", clientID(req))
}

type recordingObserver struct {
	mu   sync.Mutex
	ops  []string
	errs []error
}

func (o *recordingObserver) ObserveOperation(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	o.errs = append(o.errs, err)
}

func TestRateEndpointReportsOutcome(t *testing.T) {
	f := newFixture(t, true, RateLimit{})
	observer := &recordingObserver{}
	srv := NewServer(f.engine, ServerConfig{Observer: observer}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/tips/rate", nil))
	f.feed.SetError(testFeed, errors.New("feed paused"))
	require.Equal(t, http.StatusBadGateway, getJSON(t, ts.URL+"/v1/tips/rate", nil))
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/tips", nil))

	observer.mu.Lock()
	defer observer.mu.Unlock()
	require.Equal(t, []string{OpRate, OpRate}, observer.ops)
	require.NoError(t, observer.errs[0])
	require.ErrorIs(t, observer.errs[1], tips.ErrOracleUnavailable)
}
