package cctalk

import "strings"

// ReplyKind 响应载荷的解码变体
type ReplyKind string

const (
	ReplyGeneric    ReplyKind = "generic"
	ReplyBillEvents ReplyKind = "bill_events"
	ReplyCoinEvents ReplyKind = "coin_events"
)

// Reply 按请求 header 选择的解码结果：GenericReply | BillEventReply | CoinEventReply
type Reply interface {
	Kind() ReplyKind
	isReply()
}

// GenericReply 未特殊处理的 header；Text 为可打印 ASCII 时的字符串形式
type GenericReply struct {
	Payload []byte `json:"payload"`
	Text    string `json:"text,omitempty"`
}

// BillEventReply header 159
type BillEventReply struct {
	EventBatch
}

// CoinEventReply header 229
type CoinEventReply struct {
	EventBatch
}

func (GenericReply) Kind() ReplyKind   { return ReplyGeneric }
func (BillEventReply) Kind() ReplyKind { return ReplyBillEvents }
func (CoinEventReply) Kind() ReplyKind { return ReplyCoinEvents }

func (GenericReply) isReply()   {}
func (BillEventReply) isReply() {}
func (CoinEventReply) isReply() {}

// DecodeReply 在会话与事件解码器边界按请求 header 分派
func DecodeReply(requestHeader byte, payload []byte) Reply {
	switch requestHeader {
	case HeaderReadBillEvents:
		return BillEventReply{DecodeBillEvents(payload)}
	case HeaderReadCoinEvents:
		return CoinEventReply{DecodeCoinEvents(payload)}
	default:
		text, _ := ASCII(payload)
		return GenericReply{Payload: append([]byte(nil), payload...), Text: text}
	}
}

// Batch 事件类响应返回批次
func Batch(r Reply) (EventBatch, bool) {
	switch v := r.(type) {
	case BillEventReply:
		return v.EventBatch, true
	case CoinEventReply:
		return v.EventBatch, true
	}
	return EventBatch{}, false
}

// ASCII 所有字节均为 0 或可打印 ASCII 时转换为字符串（去掉 0 填充）
func ASCII(b []byte) (string, bool) {
	if len(b) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c == 0:
		case c >= 32 && c <= 126:
			sb.WriteByte(c)
		default:
			return "", false
		}
	}
	return sb.String(), true
}
