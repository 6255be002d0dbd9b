// Package llm 定义统一的 LLM Provider 接口、消息类型与错误码，
// 以及基于 Redis 的响应缓存包装。
package llm
