package twilio

import (
	"log/slog"
	"net/http"
	"strings"

	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/harunnryd/agrichat/pkg/logging"
)

// StatusHandler receives Twilio message status callbacks for expert pages
// and logs delivery failures. Requests without a valid X-Twilio-Signature
// are rejected.
type StatusHandler struct {
	cfg    Config
	logger *slog.Logger
}

func NewStatusHandler(cfg Config, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{cfg: cfg.withDefaults(), logger: logging.NewComponentLogger(logger, "expert_sms")}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !h.valid(r) {
		h.logger.Warn("sms_status_rejected", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	sid := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("MessageStatus")
	switch status {
	case "failed", "undelivered":
		h.logger.Warn("expert_sms_failed", "sid", sid, "status", status, "error_code", r.PostForm.Get("ErrorCode"))
	default:
		h.logger.Debug("expert_sms_status", "sid", sid, "status", status)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StatusHandler) valid(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || h.cfg.AuthToken == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	validator := twilioclient.NewRequestValidator(h.cfg.AuthToken)
	return validator.Validate(h.requestURL(r), params, signature)
}

func (h *StatusHandler) requestURL(r *http.Request) string {
	if h.cfg.PublicURL != "" {
		return strings.TrimRight(h.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
