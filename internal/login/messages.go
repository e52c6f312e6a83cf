package login

import (
	"errors"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/victorxys/dify-0.15.3/internal/auth"
)

var supported = []language.Tag{
	language.SimplifiedChinese,
	language.English,
}

var matcher = language.NewMatcher(supported)

const (
	msgValidation        = "login.validation"
	msgNetworkFailure    = "login.network_failure"
	msgUpstreamRejected  = "login.upstream_rejected"
	msgUpstreamDetail    = "login.upstream_rejected_detail"
	msgMalformedResponse = "login.malformed_response"
	msgMissingConfig     = "login.missing_configuration"
	msgStorage           = "login.storage_unavailable"
	msgInProgress        = "login.in_progress"
	msgUnknown           = "login.unknown"
	msgSuccess           = "login.success"
)

func init() {
	zh := language.SimplifiedChinese
	message.SetString(zh, msgValidation, "请输入手机号和密码")
	message.SetString(zh, msgNetworkFailure, "网络异常，请稍后重试")
	message.SetString(zh, msgUpstreamRejected, "登录失败，请检查手机号和密码")
	message.SetString(zh, msgUpstreamDetail, "操作失败: %s")
	message.SetString(zh, msgMalformedResponse, "外部登录失败：无效的响应")
	message.SetString(zh, msgMissingConfig, "系统配置错误，请联系管理员")
	message.SetString(zh, msgStorage, "无法保存登录状态，请检查浏览器设置")
	message.SetString(zh, msgInProgress, "正在登录，请稍候")
	message.SetString(zh, msgUnknown, "未知错误")
	message.SetString(zh, msgSuccess, "登录成功")

	en := language.English
	message.SetString(en, msgValidation, "Please enter your phone number and password")
	message.SetString(en, msgNetworkFailure, "Network error, please try again later")
	message.SetString(en, msgUpstreamRejected, "Login failed, check your phone number and password")
	message.SetString(en, msgUpstreamDetail, "Login failed: %s")
	message.SetString(en, msgMalformedResponse, "External login failed: invalid response")
	message.SetString(en, msgMissingConfig, "The service is misconfigured, contact the administrator")
	message.SetString(en, msgStorage, "Could not save the login session, check your browser settings")
	message.SetString(en, msgInProgress, "Login in progress, please wait")
	message.SetString(en, msgUnknown, "Unknown error")
	message.SetString(en, msgSuccess, "Logged in")
}

// ResolveTag picks the notice language from the Accept-Language header.
// Simplified Chinese is the default.
func ResolveTag(r *http.Request) language.Tag {
	if r == nil {
		return supported[0]
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

// Notice returns the single user-facing message for err.
func Notice(tag language.Tag, err error) string {
	p := message.NewPrinter(tag)

	if errors.Is(err, ErrSubmitInProgress) {
		return p.Sprintf(msgInProgress)
	}

	switch auth.KindOf(err) {
	case auth.KindNone:
		return p.Sprintf(msgSuccess)
	case auth.KindValidation:
		return p.Sprintf(msgValidation)
	case auth.KindNetworkFailure:
		return p.Sprintf(msgNetworkFailure)
	case auth.KindUpstreamRejected:
		if m := auth.UpstreamMessage(err); m != "" {
			return p.Sprintf(msgUpstreamDetail, m)
		}
		return p.Sprintf(msgUpstreamRejected)
	case auth.KindMalformedResponse:
		return p.Sprintf(msgMalformedResponse)
	case auth.KindMissingConfiguration:
		return p.Sprintf(msgMissingConfig)
	case auth.KindStorageUnavailable:
		return p.Sprintf(msgStorage)
	default:
		return p.Sprintf(msgUnknown)
	}
}
