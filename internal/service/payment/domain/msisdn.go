// internal/service/payment/domain/msisdn.go
package domain

import (
	"strings"
	"unicode"
)

// MSISDN 是已归一化为 E.164 格式的手机号，例如 "+256755123456"。
// 网关适配器只接受该类型，保证任何网络调用之前号码都已通过归一化。
type MSISDN string

func (m MSISDN) String() string { return string(m) }

// 乌干达本地号码的长度约束：国家码后跟 9 位用户号码。
const subscriberDigits = 9

// NormalizeMSISDN 把原始的、不可信的手机号输入归一化为 E.164。
//
// 接受的形式（以默认国家码 256 为例）：
//   - "0755123456"        本地格式，0 换成国家码
//   - "256755123456"      已带国家码但缺少加号
//   - "+256755123456"     完整 E.164，原样通过
//
// 空格、横线、点和括号会被剥离。其余任何形式都返回校验错误。
// 该函数是幂等的：对已归一化的值再次调用返回相同结果。
func NormalizeMSISDN(raw, defaultCountryCode string) (MSISDN, error) {
	if defaultCountryCode == "" {
		defaultCountryCode = "256"
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if cleaned == "" {
		return "", E(KindValidation, "phone number is empty")
	}

	hasPlus := strings.HasPrefix(cleaned, "+")
	digits := strings.TrimPrefix(cleaned, "+")
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return "", E(KindValidation, "phone number contains non-digit characters: %q", raw)
		}
	}

	cc := defaultCountryCode
	var subscriber string
	switch {
	case hasPlus && strings.HasPrefix(digits, cc):
		subscriber = strings.TrimPrefix(digits, cc)
	case !hasPlus && strings.HasPrefix(digits, "0"):
		subscriber = strings.TrimPrefix(digits, "0")
	case !hasPlus && strings.HasPrefix(digits, cc):
		subscriber = strings.TrimPrefix(digits, cc)
	default:
		return "", E(KindValidation, "phone number %q is not in a recognized format", raw)
	}

	if len(subscriber) != subscriberDigits {
		return "", E(KindValidation, "phone number %q has wrong subscriber length", raw)
	}
	// 本地格式里用户号码不会再以 0 开头
	if strings.HasPrefix(subscriber, "0") {
		return "", E(KindValidation, "phone number %q has invalid subscriber prefix", raw)
	}

	return MSISDN("+" + cc + subscriber), nil
}
