package api

import (
	"time"

	"github.com/taoyao-code/cctalk-host/internal/logging"
	"github.com/taoyao-code/cctalk-host/internal/poller"
	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/session"
)

// 请求/响应里的字节序列用十进制整数数组表示，和设备文档一致

type commandRequest struct {
	Header *int  `json:"header" binding:"required"`
	Data   []int `json:"data"`
}

type sessionRequest struct {
	Address   *int    `json:"address"`
	Mode      *string `json:"mode"`
	TimeoutMs *int    `json:"timeout_ms"`
}

type pollRequest struct {
	Header   *int `json:"header"`
	PeriodMs int  `json:"period_ms"`
}

type rawView struct {
	Request  string `json:"request"`
	Response string `json:"response"`
}

type replyView struct {
	Kind    cctalk.ReplyKind `json:"kind"`
	Data    []int            `json:"data,omitempty"`
	Text    string           `json:"text,omitempty"`
	Counter *int             `json:"counter,omitempty"`
	Events  []eventView      `json:"events,omitempty"`
}

type eventView struct {
	cctalk.Event
	Text string `json:"text"`
}

type commandResponse struct {
	ID          string    `json:"id"`
	Header      int       `json:"header"`
	HeaderName  string    `json:"header_name,omitempty"`
	Data        []int     `json:"data"`
	Valid       bool      `json:"valid"`
	EchoMissing bool      `json:"echo_missing"`
	Reply       replyView `json:"reply"`
	Raw         rawView   `json:"raw"`
	DurationMs  float64   `json:"duration_ms"`
}

type sessionView struct {
	Address      byte        `json:"address"`
	Mode         cctalk.Mode `json:"mode"`
	TimeoutMs    int64       `json:"timeout_ms"`
	LastResponse *time.Time  `json:"last_response,omitempty"`
}

type deviceView struct {
	session.Device
	Online bool `json:"online"`
}

type updateView struct {
	At     time.Time `json:"at"`
	Header int       `json:"header"`
	Data   []int     `json:"data"`
	Reply  replyView `json:"reply"`
}

type pollView struct {
	Running  bool         `json:"running"`
	Header   int          `json:"header"`
	PeriodMs int64        `json:"period_ms"`
	Stats    poller.Stats `json:"stats"`
	Last     *updateView  `json:"last,omitempty"`
}

func ints(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func newReplyView(r cctalk.Reply) replyView {
	v := replyView{Kind: r.Kind()}
	if g, ok := r.(cctalk.GenericReply); ok {
		v.Data = ints(g.Payload)
		v.Text = g.Text
		return v
	}
	if batch, ok := cctalk.Batch(r); ok {
		counter := int(batch.Counter)
		v.Counter = &counter
		v.Events = make([]eventView, 0, len(batch.Events))
		for _, e := range batch.Events {
			v.Events = append(v.Events, eventView{Event: e, Text: e.String()})
		}
	}
	return v
}

func newCommandResponse(requestHeader byte, res *session.Result, names *cctalk.HeaderTable) commandResponse {
	return commandResponse{
		ID:          res.ID,
		Header:      int(res.Header),
		HeaderName:  names.Name(res.Header),
		Data:        ints(res.Payload),
		Valid:       res.Valid,
		EchoMissing: res.EchoMissing,
		Reply:       newReplyView(cctalk.DecodeReply(requestHeader, res.Payload)),
		Raw: rawView{
			Request:  logging.Hex(res.Request),
			Response: logging.Hex(res.Response),
		},
		DurationMs: float64(res.Duration.Microseconds()) / 1000,
	}
}

func newUpdateView(u poller.Update) *updateView {
	reply := u.Reply
	if reply == nil {
		reply = cctalk.DecodeReply(u.Header, u.Payload)
	}
	return &updateView{
		At:     u.At,
		Header: int(u.Header),
		Data:   ints(u.Payload),
		Reply:  newReplyView(reply),
	}
}
