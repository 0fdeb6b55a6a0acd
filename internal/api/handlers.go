package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"SmartClaim/internal/dispatch"
	xerrors "SmartClaim/internal/errors"
	"SmartClaim/internal/notify"
	"SmartClaim/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	maxJSONBody   = 64 << 10
	maxFormField  = 16 << 10
	defaultNotice = 20
)

type walletView struct {
	State    session.State `json:"state"`
	Account  string        `json:"account,omitempty"`
	Detected bool          `json:"detected"`
	DeepLink string        `json:"deep_link,omitempty"`
}

type errorBody struct {
	Code    xerrors.Code `json:"code"`
	Message string       `json:"message"`
}

type toggleResponse struct {
	Wallet walletView     `json:"wallet"`
	Notice *notify.Notice `json:"notice,omitempty"`
	Error  *errorBody     `json:"error,omitempty"`
}

type actionResponse struct {
	Action      dispatch.Action `json:"action"`
	Notice      notify.Notice   `json:"notice"`
	TxHash      string          `json:"tx_hash,omitempty"`
	BlockNumber uint64          `json:"block_number,omitempty"`
	Error       *errorBody      `json:"error,omitempty"`
}

func (s *Server) view(current session.Session) walletView {
	v := walletView{State: current.State(), Detected: s.sessions.Detected()}
	if acct, ok := current.Account(); ok {
		v.Account = acct.Hex()
	}
	if !v.Detected {
		v.DeepLink = s.sessions.DeepLink()
	}
	return v
}

func (s *Server) handleWallet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.view(s.sessions.Current()))
}

// handleToggle 切换钱包连接。带 wait=true 时会等待合约绑定完成再返回，
// 绑定失败只记录日志，不产生提示。
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	current, err := s.sessions.Toggle(r.Context())
	resp := toggleResponse{Wallet: s.view(current)}
	if err != nil {
		resp.Error = toErrorBody(err)
		if xerrors.ShouldNotify(err) {
			n := notify.Failure(session.ActionToggle, err)
			resp.Notice = &n
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait && current.State() == session.StateConnecting {
		bound, err := s.sessions.WaitBound(r.Context())
		resp.Wallet = s.view(bound)
		if err != nil {
			resp.Error = toErrorBody(err)
			writeJSON(w, statusFor(err), resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterPolicy(w http.ResponseWriter, r *http.Request) {
	var req dispatch.PolicyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.reject(w, r, dispatch.ActionRegisterPolicy, err)
		return
	}
	res, err := s.actions.RegisterPolicy(r.Context(), req)
	s.writeAction(w, r, res, err)
}

func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	req, err := readClaim(r)
	if err != nil {
		s.reject(w, r, dispatch.ActionSubmitClaim, err)
		return
	}
	res, err := s.actions.SubmitClaim(r.Context(), req)
	s.writeAction(w, r, res, err)
}

func (s *Server) handleApproveClaim(w http.ResponseWriter, r *http.Request) {
	res, err := s.actions.ApproveClaim(r.Context(), dispatch.AdminRequest{PolicyID: chi.URLParam(r, "policyID")})
	s.writeAction(w, r, res, err)
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	res, err := s.actions.Payout(r.Context(), dispatch.AdminRequest{PolicyID: chi.URLParam(r, "policyID")})
	s.writeAction(w, r, res, err)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	if s.notices == nil {
		writeJSON(w, http.StatusOK, []notify.Notice{})
		return
	}
	limit := defaultNotice
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.notices.Recent(limit))
}

func (s *Server) writeAction(w http.ResponseWriter, r *http.Request, res dispatch.Result, err error) {
	resp := actionResponse{
		Action:      res.Action,
		Notice:      res.Notice,
		TxHash:      res.TxHash,
		BlockNumber: res.BlockNumber,
	}
	if err != nil {
		resp.Error = toErrorBody(err)
		s.logger.Debug("action failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("action", string(res.Action)),
			slog.String("code", string(xerrors.CodeOf(err))))
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readClaim 支持 multipart 表单与 JSON 两种提交方式。附件只读取文件名，内容直接丢弃。
func readClaim(r *http.Request) (dispatch.ClaimRequest, error) {
	var req dispatch.ClaimRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		err := decodeJSON(r, &req)
		if req.Attachment != nil && req.Attachment.Name == "" {
			req.Attachment = nil
		}
		return req, err
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return req, fmt.Errorf("读取表单失败: %w", err)
	}
	for {
		part, err := mr.NextPart()
		// 截断的表单会返回包装过的 EOF，只有未包装的 io.EOF 表示正常结束。
		if err == io.EOF {
			return req, nil
		}
		if err != nil {
			return req, fmt.Errorf("读取表单失败: %w", err)
		}
		switch part.FormName() {
		case "attachment":
			if name := part.FileName(); name != "" {
				req.Attachment = &dispatch.FileRef{Name: name}
			}
		case "policy_id":
			req.PolicyID, err = readField(part)
		case "evidence":
			req.Evidence, err = readField(part)
		}
		_ = part.Close()
		if err != nil {
			return req, err
		}
	}
}

func readField(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxFormField+1))
	if err != nil {
		return "", fmt.Errorf("读取表单字段失败: %w", err)
	}
	if len(raw) > maxFormField {
		return "", errors.New("表单字段过长")
	}
	return strings.TrimSpace(string(raw)), nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("请求体解析失败: %w", err)
	}
	return nil
}

func toErrorBody(err error) *errorBody {
	return &errorBody{Code: xerrors.CodeOf(err), Message: xerrors.MessageOf(err)}
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeWalletNotDetected, xerrors.CodeNotReady:
		return http.StatusServiceUnavailable
	case xerrors.CodeFileRequired, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeConnectionRejected:
		return http.StatusForbidden
	case xerrors.CodeRegistrationFailed, xerrors.CodeClaimFailed,
		xerrors.CodeApprovalFailed, xerrors.CodePayoutFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// reject 处理无法解析的请求：提示照常经由 dispatcher 投递，响应为 400。
func (s *Server) reject(w http.ResponseWriter, r *http.Request, action dispatch.Action, cause error) {
	res, err := s.actions.Reject(r.Context(), action, cause)
	s.logger.Debug("request rejected",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("action", string(action)))
	writeJSON(w, http.StatusBadRequest, actionResponse{
		Action: action,
		Notice: res.Notice,
		Error:  toErrorBody(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
