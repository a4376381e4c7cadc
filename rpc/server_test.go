package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"yieldfarm/ledger"
	"yieldfarm/native/farming"
	"yieldfarm/storage"
)

const adminToken = "test-admin-token"

type fixture struct {
	server *Server
	http   *httptest.Server
	stake  *ledger.Token
	reward *ledger.Token
	admin  [20]byte
	now    uint64
}

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func hexAddr(a [20]byte) string {
	return fmt.Sprintf("0x%x", a[:])
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "farm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	admin := addr(0xAD)
	vault := addr(0xEE)
	authority := farming.NewSingleAuthority(admin)

	stake := ledger.NewToken("FARM", vault)
	reward := ledger.NewToken("HARVEST", vault)
	tokens := ledger.NewRegistry()
	tokens.Register("FARM", stake)
	tokens.Register("HARVEST", reward)

	registry := farming.NewRegistry(store, authority)
	engine := farming.NewEngine(store, tokens, reward, vault, authority)

	f := &fixture{stake: stake, reward: reward, admin: admin, now: 1_000}
	f.server = New(registry, engine, nil, NewBearerAuth(adminToken), nil)
	f.server.SetNowFunc(func() uint64 { return f.now })
	f.http = httptest.NewServer(f.server.Router())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) request(t *testing.T, method, path string, body any, admin bool) *http.Response {
	t.Helper()
	var payload *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	}
	req, err := http.NewRequest(method, f.http.URL+path, payload)
	require.NoError(t, err)
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (f *fixture) createPool(t *testing.T, rate string) string {
	t.Helper()
	resp := f.request(t, http.MethodPost, "/v1/admin/pools", map[string]string{
		"caller":              hexAddr(f.admin),
		"stakeToken":          "FARM",
		"rewardRatePerSecond": rate,
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[map[string]string](t, resp)["poolId"]
}

func TestAdminSurfaceRequiresToken(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodPost, "/v1/admin/pools", map[string]string{
		"caller":              hexAddr(f.admin),
		"stakeToken":          "FARM",
		"rewardRatePerSecond": "5",
	}, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPoolLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	scale := farming.RewardScale().String()

	poolID := f.createPool(t, scale)

	// Identical parameters at the same instant collide.
	resp := f.request(t, http.MethodPost, "/v1/admin/pools", map[string]string{
		"caller":              hexAddr(f.admin),
		"stakeToken":          "FARM",
		"rewardRatePerSecond": scale,
	}, true)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	f.now++
	second := f.createPool(t, scale)
	require.NotEqual(t, poolID, second)

	resp = f.request(t, http.MethodGet, "/v1/pools", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pools := decode[map[string][]string](t, resp)["pools"]
	require.Equal(t, []string{poolID, second}, pools)

	resp = f.request(t, http.MethodGet, "/v1/pools/count", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, decode[map[string]int](t, resp)["count"])

	resp = f.request(t, http.MethodGet, "/v1/pools/"+poolID+"/snapshot", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, decode[map[string]string](t, resp)["snapshot"])
}

func TestStakeClaimFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	user := addr(0x01)
	oneThousand := new(big.Int).Mul(big.NewInt(1000), farming.RewardScale())
	f.stake.Mint(user, oneThousand)
	f.reward.Mint(addr(0xEE), new(big.Int).Mul(big.NewInt(10_000), farming.RewardScale()))

	poolID := f.createPool(t, farming.RewardScale().String())

	resp := f.request(t, http.MethodPost, "/v1/pools/"+poolID+"/stake", map[string]string{
		"user":   hexAddr(user),
		"amount": oneThousand.String(),
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f.now += 100
	resp = f.request(t, http.MethodGet, "/v1/pools/"+poolID+"/rewards/"+hexAddr(user), nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[map[string]string](t, resp)["pending"]
	want := new(big.Int).Mul(big.NewInt(100), farming.RewardScale())
	require.Equal(t, want.String(), pending)

	resp = f.request(t, http.MethodPost, "/v1/pools/"+poolID+"/claim", map[string]string{
		"user": hexAddr(user),
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, want.String(), decode[map[string]string](t, resp)["paid"])

	// Claiming again with nothing accrued conflicts.
	resp = f.request(t, http.MethodPost, "/v1/pools/"+poolID+"/claim", map[string]string{
		"user": hexAddr(user),
	}, false)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestFullWithdrawalConflictsOverHTTP(t *testing.T) {
	f := newFixture(t)
	user := addr(0x02)
	hundred := new(big.Int).Mul(big.NewInt(100), farming.RewardScale())
	f.stake.Mint(user, hundred)

	poolID := f.createPool(t, "7")
	resp := f.request(t, http.MethodPost, "/v1/pools/"+poolID+"/stake", map[string]string{
		"user":   hexAddr(user),
		"amount": hundred.String(),
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, http.MethodPost, "/v1/pools/"+poolID+"/withdraw", map[string]string{
		"user":   hexAddr(user),
		"amount": hundred.String(),
	}, false)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMalformedInputsRejected(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodGet, "/v1/pools/not-hex", nil, false)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	poolID := f.createPool(t, "5")
	resp = f.request(t, http.MethodPost, "/v1/pools/"+poolID+"/stake", map[string]string{
		"user":   "0x1234",
		"amount": "10",
	}, false)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodPost, "/v1/pools/"+poolID+"/stake", map[string]string{
		"user":   hexAddr(addr(0x01)),
		"amount": "ten",
	}, false)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.request(t, http.MethodGet, "/v1/pools/"+unknownPoolID()+"", nil, false)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func unknownPoolID() string {
	var id farming.PoolID
	id[0] = 0xFF
	return id.String()
}

func TestRateLimiterThrottles(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	wrapped := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	wrapped.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/pools", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	wrapped.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/pools", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}
