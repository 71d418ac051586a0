package cctalk

import "fmt"

// Category 事件分类
type Category string

const (
	CategoryStatus        Category = "Status"
	CategoryReject        Category = "Reject"
	CategoryFatalError    Category = "Fatal Error"
	CategoryFraudAttempt  Category = "Fraud Attempt"
	CategoryCredit        Category = "Credit"
	CategoryPendingCredit Category = "Pending Credit"
	CategoryUnknown       Category = "Unknown"
)

// EventSlots 每次轮询返回的事件对数量
const EventSlots = 5

// Event 单个事件对的解码结果
type Event struct {
	Index       int      `json:"index"` // 1..5
	Category    Category `json:"category"`
	Description string   `json:"description"`
	ResultA     byte     `json:"result_a"`
	ResultB     byte     `json:"result_b"`
}

// String 形如 "Status: Master inhibit active"
func (e Event) String() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Description)
}

// EventBatch 事件计数器 + 固定 5 个事件
type EventBatch struct {
	Counter byte              `json:"counter"`
	Events  [EventSlots]Event `json:"events"`
}

// Equal 整体比较（轮询变化检测按整序列比较）
func (b EventBatch) Equal(other EventBatch) bool {
	return b == other
}

// billEventText header 159，resultA==0 时 resultB 的含义
var billEventText = map[byte]string{
	0:  "Master inhibit active",
	1:  "Bill returned from escrow",
	2:  "Invalid bill (due to validation fail)",
	3:  "Invalid bill (due to transport problem)",
	4:  "Inhibited bill (on serial)",
	5:  "Inhibited bill (on DIP switches)",
	6:  "Bill jammed in transport (unsafe mode)",
	7:  "Bill jammed in stacker",
	8:  "Bill pulled backwards",
	9:  "Bill tamper",
	10: "Stacker OK",
	11: "Stacker removed",
	12: "Stacker inserted",
	13: "Stacker faulty",
	14: "Stacker full",
	15: "Stacker jammed",
	16: "Bill jammed in transport (safe mode)",
	17: "Opto fraud detected",
	18: "String fraud detected",
	19: "Anti-string mechanism faulty",
	20: "Barcode detected",
	21: "Unknown bill type stacked",
}

func billCategory(code byte) Category {
	switch code {
	case 0, 1, 4, 5, 10, 11, 12, 14, 20, 21:
		return CategoryStatus
	case 2, 3:
		return CategoryReject
	case 6, 7, 13, 15, 16, 19:
		return CategoryFatalError
	default:
		return CategoryFraudAttempt
	}
}

// coinEventText header 229，resultA==0 时 resultB 为错误码
var coinEventText = map[byte]string{
	0:   "Null event (no error)",
	1:   "Reject coin",
	2:   "Inhibited coin",
	3:   "Multiple window",
	4:   "Wake-up timeout",
	5:   "Validation timeout",
	6:   "Credit sensor timeout",
	7:   "Sorter opto timeout",
	8:   "2nd close coin error",
	9:   "Accept gate not ready",
	10:  "Credit sensor not ready",
	11:  "Sorter not ready",
	12:  "Reject coin not cleared",
	13:  "Validation sensor not ready",
	14:  "Credit sensor blocked",
	15:  "Sorter opto blocked",
	16:  "Credit sequence error",
	17:  "Coin going backwards",
	18:  "Coin too fast (over credit sensor)",
	19:  "Coin too slow (over credit sensor)",
	20:  "C.O.S. mechanism activated (coin-on-string)",
	21:  "DCE opto timeout",
	22:  "DCE opto not seen",
	23:  "Credit sensor reached too early",
	24:  "Reject coin (repeated sequential trip)",
	25:  "Reject slug",
	26:  "Reject sensor blocked",
	27:  "Games overload",
	28:  "Max. coin meter pulses exceeded",
	29:  "Accept gate open not closed",
	30:  "Accept gate closed not open",
	31:  "Manifold opto timeout",
	32:  "Manifold opto blocked",
	33:  "Manifold not ready",
	34:  "Security status changed",
	35:  "Motor exception",
	253: "Data block request",
	254: "Coin return mechanism activated",
	255: "Unspecified alarm code",
}

func coinCategory(code byte) Category {
	if code >= 128 && code <= 159 { // 按类型禁止的硬币
		return CategoryReject
	}
	switch code {
	case 0, 34, 253, 254:
		return CategoryStatus
	case 1, 2, 3, 4, 5, 6, 8, 9, 10, 11, 12, 13, 23, 24, 25:
		return CategoryReject
	case 7, 14, 15, 21, 22, 26, 27, 29, 30, 31, 32, 33, 35, 255:
		return CategoryFatalError
	case 16, 17, 18, 19, 20, 28:
		return CategoryFraudAttempt
	default:
		return CategoryUnknown
	}
}

func coinErrorText(code byte) string {
	if d, ok := coinEventText[code]; ok {
		return d
	}
	if code >= 128 && code <= 159 {
		return fmt.Sprintf("Inhibited coin (type %d)", code-127)
	}
	return fmt.Sprintf("Unknown event (A=0, B=%d)", code)
}

// pairs 取出计数器与 5 个 (A,B)，不足部分按 (0,0)
func pairs(payload []byte) (counter byte, out [EventSlots][2]byte) {
	if len(payload) == 0 {
		return 0, out
	}
	counter = payload[0]
	for i := 0; i < EventSlots; i++ {
		idx := 1 + i*2
		if idx+1 < len(payload) {
			out[i] = [2]byte{payload[idx], payload[idx+1]}
		}
	}
	return counter, out
}

// DecodeBillEvents 解码 header 159（纸币器缓冲事件）
func DecodeBillEvents(payload []byte) EventBatch {
	counter, ps := pairs(payload)
	batch := EventBatch{Counter: counter}
	for i, p := range ps {
		a, b := p[0], p[1]
		ev := Event{Index: i + 1, ResultA: a, ResultB: b}
		switch {
		case a == 0:
			ev.Category = billCategory(b)
			if d, ok := billEventText[b]; ok {
				ev.Description = d
			} else {
				ev.Description = fmt.Sprintf("Unknown event (A=%d, B=%d)", a, b)
			}
		case b == 0:
			ev.Category = CategoryCredit
			ev.Description = fmt.Sprintf("Bill type %d validated correctly and sent to cashbox/stacker", a)
		case b == 1:
			ev.Category = CategoryPendingCredit
			ev.Description = fmt.Sprintf("Bill type %d validated correctly and held in escrow", a)
		default:
			ev.Category = CategoryUnknown
			ev.Description = fmt.Sprintf("A=%d, B=%d", a, b)
		}
		batch.Events[i] = ev
	}
	return batch
}

// DecodeCoinEvents 解码 header 229（投币器缓冲事件），A>0 为硬币类型，B 为分拣通道
func DecodeCoinEvents(payload []byte) EventBatch {
	counter, ps := pairs(payload)
	batch := EventBatch{Counter: counter}
	for i, p := range ps {
		a, b := p[0], p[1]
		ev := Event{Index: i + 1, ResultA: a, ResultB: b}
		if a == 0 {
			ev.Category = coinCategory(b)
			ev.Description = coinErrorText(b)
		} else {
			ev.Category = CategoryCredit
			ev.Description = fmt.Sprintf("Coin type %d accepted via sorter path %d", a, b)
		}
		batch.Events[i] = ev
	}
	return batch
}
