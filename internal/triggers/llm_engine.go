package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// Completer is the slice of an LLM client the engine needs.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLMEngine asks a chat model to fill the workflow forms.
type LLMEngine struct {
	LLM Completer
}

// NewLLMEngine returns an engine backed by c.
func NewLLMEngine(c Completer) *LLMEngine { return &LLMEngine{LLM: c} }

const replyContract = `
只输出一个 JSON 对象（可放在 ` + "```json" + ` 代码块中），结构如下：
{"form": {...}, "reply_draft": "给客户的中文回复草稿", "confidence": 0.0-1.0}
未提及的字段填 null，不要编造。`

var systemPrompts = map[domain.TriggerType]string{
	domain.TriggerPreSales: `你是充电桩厂商的售前工程师。从客户对话中提取询价要素表，form 字段为：
功率_kW, 枪型, 输入电压, 配电, 附件, 交付地, 期望交期, 数量, 发票要求。
另外给出 clarification_questions（3-8 条澄清问题）。回复草稿需感谢咨询、复述已知参数、提出澄清问题并给出下一步。` + replyContract,

	domain.TriggerAfterSales: `你是充电桩厂商的售后工程师。从客户对话中提取工单信息，form 字段为：
设备序列号, 固件版本, 运行环境, 故障现象, 发生时间, 频率, 报警码, 已尝试步骤, 现场照片数量, 紧急程度(S/M/L)。
另外给出 troubleshooting：S1_remote 远程步骤与 S2_onsite 现场步骤。回复草稿需确认故障、安抚客户、说明排查计划与预计时间。` + replyContract,

	domain.TriggerBizDev: `你是充电桩厂商的渠道拓展经理。判断线索质量并提取商务信息，form 字段为：
线索级别(A/B/C), 对方角色, 涉及区域, 合作诉求, 是否需资质材料, 建议下一步, 资料包清单。
另外给出 scripts：first_contact 首次触达话术与 follow_up 次日跟进话术。` + replyContract,
}

// PreSales implements Engine.
func (e *LLMEngine) PreSales(ctx context.Context, text string) (*Output, error) {
	return e.run(ctx, domain.TriggerPreSales, text)
}

// AfterSales implements Engine.
func (e *LLMEngine) AfterSales(ctx context.Context, text string) (*Output, error) {
	return e.run(ctx, domain.TriggerAfterSales, text)
}

// BizDev implements Engine.
func (e *LLMEngine) BizDev(ctx context.Context, text string) (*Output, error) {
	return e.run(ctx, domain.TriggerBizDev, text)
}

func (e *LLMEngine) run(ctx context.Context, t domain.TriggerType, text string) (*Output, error) {
	raw, err := e.LLM.Complete(ctx, systemPrompts[t], "客户对话：\n"+text)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", strings.ToLower(string(t)), err)
	}
	out := ParseReply(raw)
	log.Debug().Str("trigger_type", string(t)).Int("form_fields", len(out.Form)).Msg("trigger completed")
	return finalize(out, t), nil
}

// ParseReply decodes a model reply. Markdown code fences are stripped.
// Keys other than form, reply_draft and confidence (clarifying questions,
// troubleshooting steps, scripts) are folded into the form. When the reply
// is not a JSON object, the whole text becomes the draft and the form is
// empty.
func ParseReply(raw string) *Output {
	body := stripFences(raw)

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return &Output{Form: map[string]any{}, ReplyDraft: strings.TrimSpace(raw)}
	}

	out := &Output{Form: map[string]any{}}
	if f, ok := doc["form"]; ok {
		_ = json.Unmarshal(f, &out.Form)
		if out.Form == nil {
			out.Form = map[string]any{}
		}
	}
	if d, ok := doc["reply_draft"]; ok {
		_ = json.Unmarshal(d, &out.ReplyDraft)
	}
	if c, ok := doc["confidence"]; ok {
		var v float64
		if json.Unmarshal(c, &v) == nil && v >= 0 && v <= 1 {
			out.Confidence = &v
		}
	}
	for k, v := range doc {
		switch k {
		case "form", "reply_draft", "confidence":
			continue
		}
		var anyV any
		if json.Unmarshal(v, &anyV) == nil {
			if _, taken := out.Form[k]; !taken {
				out.Form[k] = anyV
			}
		}
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		return strings.TrimSpace(rest)
	}
	return s
}
