// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 以下错误属于校验拒绝：调用在发起任何网络请求之前被拒绝，会话状态不变。
var (
	ErrEmptyMessage         = errors.New("service: message is empty")
	ErrExchangeBusy         = errors.New("service: an exchange is already in flight")
	ErrConversationClosed   = errors.New("service: conversation is no longer open")
	ErrLookupPending        = errors.New("service: a provider lookup is already in flight")
	ErrProvidersUnavailable = errors.New("service: provider lookup requires a completed conversation")
	ErrInvalidLocation      = errors.New("service: location is out of range")
)

// ErrLookupFailed 表示机构查询失败，可重试。
var ErrLookupFailed = errors.New("service: provider lookup failed")

// ErrConversationNotFound 表示会话不存在或已被回收。
var ErrConversationNotFound = errors.New("service: conversation not found")

// ErrUnsupportedLanguage 表示请求的语言没有对应的欢迎语配置。
var ErrUnsupportedLanguage = errors.New("service: unsupported language")

// ErrOutcomeNotFound 表示分诊结果记录不存在。
var ErrOutcomeNotFound = errors.New("service: outcome not found")

// IsRejection 判断错误是否为校验拒绝（无副作用的空操作）。
func IsRejection(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrExchangeBusy) ||
		errors.Is(err, ErrConversationClosed) ||
		errors.Is(err, ErrLookupPending) ||
		errors.Is(err, ErrProvidersUnavailable) ||
		errors.Is(err, ErrInvalidLocation)
}
