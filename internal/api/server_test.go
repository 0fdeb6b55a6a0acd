package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SmartClaim/internal/dispatch"
	xerrors "SmartClaim/internal/errors"
	"SmartClaim/internal/insurance"
	"SmartClaim/internal/notify"
	"SmartClaim/internal/session"
	"SmartClaim/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5/middleware"
)

type stubSessions struct {
	detected  bool
	toggleErr error
	toggles   int
}

func (s *stubSessions) Toggle(context.Context) (session.Session, error) {
	s.toggles++
	return session.Session{}, s.toggleErr
}

func (s *stubSessions) WaitBound(context.Context) (session.Session, error) {
	return session.Session{}, xerrors.New(xerrors.CodeNotReady, "")
}

func (s *stubSessions) Current() session.Session { return session.Session{} }
func (s *stubSessions) Detected() bool { return s.detected }
func (s *stubSessions) DeepLink() string { return session.DeepLink }

type stubActions struct {
	claim    dispatch.ClaimRequest
	policy   dispatch.PolicyRequest
	admin    dispatch.AdminRequest
	rejected []dispatch.Action
	err      error
}

func (a *stubActions) result(action dispatch.Action, message string) (dispatch.Result, error) {
	if a.err != nil {
		return dispatch.Result{Action: action, Notice: notify.Failure(string(action), a.err)}, a.err
	}
	return dispatch.Result{
		Action:      action,
		Notice:      notify.Success(string(action), message, "0xfeed"),
		TxHash:      "0xfeed",
		BlockNumber: 9,
	}, nil
}

func (a *stubActions) RegisterPolicy(_ context.Context, req dispatch.PolicyRequest) (dispatch.Result, error) {
	a.policy = req
	return a.result(dispatch.ActionRegisterPolicy, "Policy registered!")
}

func (a *stubActions) SubmitClaim(_ context.Context, req dispatch.ClaimRequest) (dispatch.Result, error) {
	a.claim = req
	return a.result(dispatch.ActionSubmitClaim, "Claim submitted!")
}

func (a *stubActions) ApproveClaim(_ context.Context, req dispatch.AdminRequest) (dispatch.Result, error) {
	a.admin = req
	return a.result(dispatch.ActionApproveClaim, "Claim approved!")
}

func (a *stubActions) Payout(_ context.Context, req dispatch.AdminRequest) (dispatch.Result, error) {
	a.admin = req
	return a.result(dispatch.ActionPayout, "Payout sent!")
}

func (a *stubActions) Reject(_ context.Context, action dispatch.Action, cause error) (dispatch.Result, error) {
	a.rejected = append(a.rejected, action)
	err := xerrors.Wrap(xerrors.CodeClaimFailed, cause, "")
	return dispatch.Result{Action: action, Notice: notify.Failure(string(action), err)}, err
}

type stubMetrics struct {
	routes []string
}

func (m *stubMetrics) ObserveHTTPRequest(handler, method string, status int, _ time.Duration) {
	m.routes = append(m.routes, method+" "+handler)
}

func (m *stubMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, actionResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body actionResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, body
}

func TestRegisterPolicyReturnsNotice(t *testing.T) {
	actions := &stubActions{}
	metrics := &stubMetrics{}
	h := NewServer(":0", &stubSessions{detected: true}, actions, WithMetrics(metrics)).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/policies",
		strings.NewReader(`{"policy_holder":"0x00000000000000000000000000000000000000b0","payout":"2.0","condition":"flood"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, body := serve(t, h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if body.Notice.Message != "Policy registered!" || body.TxHash != "0xfeed" {
		t.Fatalf("unexpected body %+v", body)
	}
	if actions.policy.Payout != "2.0" || actions.policy.Condition != "flood" {
		t.Fatalf("unexpected request %+v", actions.policy)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatal("missing request id")
	}
	if len(metrics.routes) != 1 || metrics.routes[0] != "POST /api/v1/policies" {
		t.Fatalf("unexpected metrics %v", metrics.routes)
	}
}

func TestSubmitClaimMultipartReadsOnlyFileName(t *testing.T) {
	actions := &stubActions{}
	h := NewServer(":0", &stubSessions{detected: true}, actions).Handler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("policy_id", "4")
	_ = mw.WriteField("evidence", "hail on roof")
	fw, err := mw.CreateFormFile("attachment", "roof.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte("\x89PNG not really"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, _ := serve(t, h, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	got := actions.claim
	if got.PolicyID != "4" || got.Evidence != "hail on roof" || got.Attachment == nil || got.Attachment.Name != "roof.png" {
		t.Fatalf("unexpected claim %+v", got)
	}
}

func TestSubmitClaimWithoutFileSelected(t *testing.T) {
	actions := &stubActions{err: xerrors.New(xerrors.CodeFileRequired, "")}
	h := NewServer(":0", &stubSessions{detected: true}, actions).Handler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("policy_id", "4")
	_, _ = mw.CreateFormFile("attachment", "")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, body := serve(t, h, req)

	if actions.claim.Attachment != nil {
		t.Fatal("an empty file input is not an attachment")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if body.Notice.Message != "Please select an image to upload as part of evidence." {
		t.Fatalf("unexpected notice %q", body.Notice.Message)
	}
}

func TestAdminRoutesPassPolicyID(t *testing.T) {
	actions := &stubActions{err: xerrors.New(xerrors.CodeApprovalFailed, "")}
	h := NewServer(":0", &stubSessions{detected: true}, actions).Handler()

	rec, body := serve(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/claims/17/approve", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if actions.admin.PolicyID != "17" {
		t.Fatalf("unexpected policy id %q", actions.admin.PolicyID)
	}
	if body.Error == nil || body.Error.Code != xerrors.CodeApprovalFailed || body.Notice.Message != "Error approving claim." {
		t.Fatalf("unexpected body %+v", body)
	}

	actions.err = nil
	rec, body = serve(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/claims/18/payout", nil))
	if rec.Code != http.StatusOK || body.Notice.Message != "Payout sent!" || actions.admin.PolicyID != "18" {
		t.Fatalf("unexpected payout response %d %+v", rec.Code, body)
	}
}

func TestToggleStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		status     int
		wantNotice bool
	}{
		{"connected", nil, http.StatusOK, false},
		{"not detected", xerrors.New(xerrors.CodeWalletNotDetected, ""), http.StatusServiceUnavailable, true},
		{"rejected", xerrors.New(xerrors.CodeConnectionRejected, ""), http.StatusForbidden, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewServer(":0", &stubSessions{toggleErr: tc.err}, &stubActions{}).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/toggle", nil))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			var body toggleResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if (body.Notice != nil) != tc.wantNotice {
				t.Fatalf("unexpected notice %+v", body.Notice)
			}
			if body.Wallet.DeepLink != session.DeepLink {
				t.Fatal("undetected wallet must offer the deep link")
			}
		})
	}
}

func TestMalformedPolicyBody(t *testing.T) {
	feed := notify.NewFeed(5)
	d := dispatch.New(session.NewManager(nil), dispatch.WithNotifier(feed))
	h := NewServer(":0", &stubSessions{detected: true}, d).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/policies",
		strings.NewReader(`{"policy_holder":"0x00000000000000000000000000000000000000b0","payout":2.0,"condition":"flood"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, body := serve(t, h, req)

	if rec.Code != http.StatusBadRequest || body.Error.Code != xerrors.CodeRegistrationFailed {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
	if body.Notice.Message != "Error registering policy." {
		t.Fatalf("unexpected notice %+v", body.Notice)
	}
	recent := feed.Recent(5)
	if len(recent) != 1 || recent[0].ID != body.Notice.ID {
		t.Fatalf("rejected request must reach the notice feed, got %+v", recent)
	}
}

func TestMalformedClaimFormIsRejected(t *testing.T) {
	actions := &stubActions{}
	h := NewServer(":0", &stubSessions{detected: true}, actions).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/claims", strings.NewReader("--broken"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec, body := serve(t, h, req)

	if rec.Code != http.StatusBadRequest || body.Notice.Kind != notify.KindError {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
	if len(actions.rejected) != 1 || actions.rejected[0] != dispatch.ActionSubmitClaim {
		t.Fatalf("expected one rejected claim, got %v", actions.rejected)
	}
	if actions.claim != (dispatch.ClaimRequest{}) {
		t.Fatal("submit must not be called")
	}
}

func TestNoticesAndStaticRoutes(t *testing.T) {
	feed := notify.NewFeed(5)
	_ = feed.Notify(context.Background(), notify.Success("", "first", ""))
	_ = feed.Notify(context.Background(), notify.Success("", "second", ""))
	h := NewServer(":0", &stubSessions{}, &stubActions{}, WithNotices(feed), WithMetrics(&stubMetrics{})).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/notices?limit=1", nil))
	var got []notify.Notice
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Message != "second" {
		t.Fatalf("unexpected notices %+v", got)
	}

	for path, want := range map[string]string{
		"/":        "SmartClaim Insurance dApp",
		"/healthz": `"ok"`,
		"/metrics": "# metrics",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: unexpected response %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestUnmatchedRoutesShareOneMetricLabel(t *testing.T) {
	metrics := &stubMetrics{}
	h := NewServer(":0", &stubSessions{}, &stubActions{}, WithMetrics(metrics)).Handler()

	for _, path := range []string{"/nope/1", "/nope/2", "/api/v1/wallet"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: response carries no request id", path)
		}
	}
	want := []string{"GET unmatched", "GET unmatched", "GET /api/v1/wallet"}
	if strings.Join(metrics.routes, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected route labels %v", metrics.routes)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "caller-supplied" {
		t.Fatalf("incoming request id must be kept, got %q", got)
	}
}

type grantingProvider struct{}

func (grantingProvider) Name() string { return "test" }

func (grantingProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{common.HexToAddress("0x00000000000000000000000000000000000000a1")}, nil
}

func (grantingProvider) Signer(context.Context, common.Address) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{}, nil
}

func (grantingProvider) Backend() web3.Backend { return nil }

func (grantingProvider) Close() {}

type idleHandle struct{}

func (idleHandle) RegisterPolicy(context.Context, common.Address, *big.Int, string) (*types.Transaction, error) {
	return nil, nil
}

func (idleHandle) SubmitClaim(context.Context, *big.Int, string) (*types.Transaction, error) {
	return nil, nil
}

func (idleHandle) ApproveClaim(context.Context, *big.Int) (*types.Transaction, error) { return nil, nil }

func (idleHandle) Payout(context.Context, *big.Int) (*types.Transaction, error) { return nil, nil }

func (idleHandle) WaitMined(context.Context, *types.Transaction) (*types.Receipt, error) {
	return nil, nil
}

func TestToggleWaitReturnsBoundWallet(t *testing.T) {
	release := make(chan struct{})
	sessions := session.NewManager(grantingProvider{},
		session.WithBinder(func(context.Context, web3.Provider, common.Address) (insurance.Handle, error) {
			<-release
			return idleHandle{}, nil
		}))
	h := NewServer(":0", sessions, &stubActions{}).Handler()

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/toggle?wait=true", nil))

	var body toggleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || body.Wallet.State != session.StateBound {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}

	// 断开时 wait 不生效。
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/toggle?wait=true", nil))
	if rec.Code != http.StatusOK || sessions.Current().Connected() {
		t.Fatalf("expected disconnect, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestToggleWaitReportsFailedBinding(t *testing.T) {
	sessions := session.NewManager(grantingProvider{},
		session.WithBinder(func(context.Context, web3.Provider, common.Address) (insurance.Handle, error) {
			return nil, errors.New("signer unavailable")
		}))
	h := NewServer(":0", sessions, &stubActions{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/toggle?wait=1", nil))

	var body toggleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable || body.Error == nil || body.Error.Code != xerrors.CodeNotReady {
		t.Fatalf("unexpected response %d %+v", rec.Code, body)
	}
	if body.Notice != nil || body.Wallet.State != session.StateDisconnected {
		t.Fatalf("binding failure is logged only, got %+v", body)
	}
}
