package engine

import "fmt"

// Failure classifies a failed backend exchange for user-facing text.
type Failure int

const (
	FailureOther Failure = iota
	FailureNetwork
	FailureTimeout
	FailureServer
)

func (f Failure) String() string {
	switch f {
	case FailureNetwork:
		return "network"
	case FailureTimeout:
		return "timeout"
	case FailureServer:
		return "server"
	}
	return "other"
}

// SceneFailureText is shown as fallback scene text when a choice cannot be resolved.
func SceneFailureText(f Failure, detail string) string {
	switch f {
	case FailureNetwork:
		return "网络连接失败，请检查后端服务是否运行。"
	case FailureTimeout:
		return "请求超时，可能是后端处理时间过长，请稍后重试。"
	case FailureServer:
		return fmt.Sprintf("服务器错误：%s，请检查后端日志。", detail)
	}
	return SceneFailedText
}

// WorldviewFailureText is shown in the modal when world generation fails.
func WorldviewFailureText(f Failure, backendURL, detail string) string {
	switch f {
	case FailureNetwork:
		return fmt.Sprintf("网络连接失败。请确认：\n1. 后端服务器是否已启动\n2. 服务器是否运行在 %s\n3. 防火墙是否阻止了连接", backendURL)
	case FailureTimeout:
		return "请求超时，后端服务器响应时间过长。请检查后端服务是否正常运行，或稍后重试。"
	case FailureServer:
		return detail
	}
	if detail == "" {
		detail = "未知错误"
	}
	return "生成失败：" + detail
}
