package triggers

import (
	"context"
	"strings"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// MockEngine produces deterministic outputs without calling a model. It is
// used when no LLM provider is configured and in tests.
type MockEngine struct{}

// PreSales implements Engine.
func (MockEngine) PreSales(ctx context.Context, text string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	form := map[string]any{
		"功率_kW":   pick(strings.Contains(text, "320"), 320),
		"枪型":      pick(strings.Contains(text, "双枪"), "双枪"),
		"输入电压":    "380V三相",
		"配电":      nil,
		"附件":      nil,
		"交付地":     nil,
		"交期":      nil,
		"数量":      nil,
		"发票要求":    pick(strings.Contains(text, "专票"), "专票"),
		"含税":      strings.Contains(text, "含税"),
		"clarification_questions": []any{
			"请问充电桩的安装场景是？(公共/私人/商业)",
			"配电容量是否已确认？",
			"是否需要配套立柱和线缆？",
			"交付地址在哪个城市？",
		},
	}
	return finalize(&Output{
		Form:       form,
		ReplyDraft: "感谢您的咨询！为了给您准确报价，请补充：1)安装场景 2)配电容量 3)是否需要立柱线缆 4)交付地址。收到后我们会第一时间提供方案和报价。",
	}, domain.TriggerPreSales), nil
}

// AfterSales implements Engine.
func (MockEngine) AfterSales(ctx context.Context, text string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	alarm := pick(strings.Contains(text, "E103"), "E103")
	form := map[string]any{
		"设备序列号":  nil,
		"固件版本":   nil,
		"故障描述":   pick(strings.Contains(text, "E103"), "报警码E103，无法充电"),
		"报警码":    alarm,
		"已尝试步骤":  pick(strings.Contains(text, "重启"), "已重启"),
		"是否上门":   false,
		"现场照片数量": 0,
		"紧急程度":   "S",
		"troubleshooting": map[string]any{
			"S1_remote": []any{"检查显示屏报警详情", "查看通信指示灯", "确认输入电压", "长按5秒软重启"},
			"S2_onsite": []any{"检查主控板连接线", "测量输入输出电压", "更换通信模块", "升级固件"},
		},
	}
	return finalize(&Output{
		Form:       form,
		ReplyDraft: "感谢您的反馈，工单已受理。请先确认输入电压并软重启设备；如未恢复，工程师将在2小时内远程排查，必要时48小时内上门处理。",
	}, domain.TriggerAfterSales), nil
}

// BizDev implements Engine.
func (MockEngine) BizDev(ctx context.Context, text string) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	form := map[string]any{
		"线索级别":    "B",
		"合作类型":    pick(strings.Contains(text, "代理"), "代理"),
		"区域":      nil,
		"合作诉求":    pick(strings.Contains(text, "返点"), "了解代理政策和返点"),
		"是否需资质材料": true,
		"建议下一步":   "15分钟内电话联系",
		"资料包清单":   []any{"公司简介", "产品手册", "代理政策", "成功案例"},
	}
	return finalize(&Output{
		Form:       form,
		ReplyDraft: "您好！很高兴收到您的合作意向。我们正在全国招募优质代理伙伴，稍后会把代理政策资料发给您，也想进一步了解您所在区域和目标客户。",
	}, domain.TriggerBizDev), nil
}

func pick(ok bool, v any) any {
	if ok {
		return v
	}
	return nil
}
