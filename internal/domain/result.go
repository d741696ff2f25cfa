package domain

// Outcome 操作结果的确定性
type Outcome string

const (
	// OutcomeSucceeded 已确认成功
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed 已确认失败，本地状态未改变
	OutcomeFailed Outcome = "failed"
	// OutcomeUnknown 请求已发出但结果未知，重试前必须先对账
	OutcomeUnknown Outcome = "unknown"
)

// Result 对外操作结果
type Result struct {
	Outcome Outcome `json:"outcome"`
	// Digest 交易所订单摘要（若有）
	Digest string `json:"digest,omitempty"`
	// Entry 操作后的账本记录（若有）
	Entry *LedgerEntry `json:"entry,omitempty"`
	// Trigger 条件单详情（TP/SL）
	Trigger *TriggerPlan `json:"trigger,omitempty"`
	// Cancelled 撤单数量
	Cancelled int    `json:"cancelled,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Succeeded 构造成功结果
func Succeeded(digest string) Result {
	return Result{Outcome: OutcomeSucceeded, Digest: digest}
}

// Failed 构造失败结果
func Failed(err error) Result {
	r := Result{Outcome: OutcomeFailed}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// OutcomeFor 根据错误推导结果：提交后才出现的网络错误结果未知
func OutcomeFor(err error, submitted bool) Outcome {
	if err == nil {
		return OutcomeSucceeded
	}
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		if submitted || WasSubmitted(err) {
			return OutcomeUnknown
		}
	}
	return OutcomeFailed
}
