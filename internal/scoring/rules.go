// Package scoring turns one inbound message into a 0-100 trust score and a
// WHITE/GRAY/BLACK bucket. The engine is a pure function of its Rules: no
// I/O, no clock, no shared mutable state.
package scoring

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Keyword groups that map onto trigger workflows. Rules may carry further
// groups; they contribute to the score but never select a workflow.
const (
	GroupPreSales   = "pre_sales"
	GroupAfterSales = "after_sales"
	GroupBizDev     = "bizdev"
)

// Rules parameterizes the scoring engine.
type Rules struct {
	Keywords       map[string][]string `yaml:"keywords"        json:"keywords"`
	Blacklist      []string            `yaml:"blacklist"       json:"blacklist"`
	FileWeights    map[string]int      `yaml:"file_weights"    json:"file_weights"`
	WorkStartHour  int                 `yaml:"work_start_hour" json:"work_start_hour"`
	WorkEndHour    int                 `yaml:"work_end_hour"   json:"work_end_hour"`
	WeekdayBonus   int                 `yaml:"weekday_bonus"   json:"weekday_bonus"`
	WeekendBonus   int                 `yaml:"weekend_bonus"   json:"weekend_bonus"`
	KBMatchWeight  int                 `yaml:"kb_match_weight" json:"kb_match_weight"`
	WhiteThreshold int                 `yaml:"white_threshold" json:"white_threshold"`
	GrayLower      int                 `yaml:"gray_lower"      json:"gray_lower"`
}

// DefaultRules returns the production defaults for an EV-charger sales desk.
func DefaultRules() Rules {
	return Rules{
		Keywords: map[string][]string{
			GroupPreSales: {
				"报价", "价格", "参数", "型号", "交期", "样机", "招标",
				"折扣", "含税", "EXW", "FOB", "功率", "枪型",
			},
			GroupAfterSales: {
				"故障", "报错", "报警码", "返修", "保修", "上门",
				"无法充电", "安装", "调试", "工单", "序列号",
			},
			GroupBizDev: {
				"代理", "渠道", "合作", "资质", "样板", "分销",
				"招募", "返点", "区域",
			},
		},
		Blacklist: []string{"吃饭", "撸串", "喝酒", "打球", "游戏", "电影"},
		FileWeights: map[string]int{
			"pdf": 10, "xls": 12, "xlsx": 12, "doc": 6, "docx": 6,
			"cad": 15, "jpg": 4, "png": 4,
		},
		WorkStartHour:  8,
		WorkEndHour:    20,
		WeekdayBonus:   12,
		WeekendBonus:   4,
		KBMatchWeight:  20,
		WhiteThreshold: 80,
		GrayLower:      60,
	}
}

// Validate checks ranges and ordering of the numeric knobs.
func (r Rules) Validate() error {
	if r.WhiteThreshold < 0 || r.WhiteThreshold > 100 {
		return errors.New("white_threshold must be in [0,100]")
	}
	if r.GrayLower < 0 || r.GrayLower > 100 {
		return errors.New("gray_lower must be in [0,100]")
	}
	if r.GrayLower > r.WhiteThreshold {
		return errors.New("gray_lower must be <= white_threshold")
	}
	if r.WorkStartHour < 0 || r.WorkStartHour > 23 || r.WorkEndHour < 0 || r.WorkEndHour > 23 {
		return errors.New("work hours must be in [0,23]")
	}
	if r.WorkStartHour > r.WorkEndHour {
		return errors.New("work_start_hour must be <= work_end_hour")
	}
	if r.WeekdayBonus < 0 || r.WeekendBonus < 0 || r.KBMatchWeight < 0 {
		return errors.New("bonuses and weights must be >= 0")
	}
	for ft, w := range r.FileWeights {
		if w < 0 {
			return fmt.Errorf("file weight for %q must be >= 0", ft)
		}
	}
	return nil
}

// LoadRules reads a YAML rules document and overlays it on DefaultRules.
// Keys absent from the document keep their defaults; a present map or list
// replaces the default one wholesale. An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules is LoadRules for an in-memory YAML document.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	var overlay struct {
		Keywords       map[string][]string `yaml:"keywords"`
		Blacklist      []string            `yaml:"blacklist"`
		FileWeights    map[string]int      `yaml:"file_weights"`
		WorkStartHour  *int                `yaml:"work_start_hour"`
		WorkEndHour    *int                `yaml:"work_end_hour"`
		WeekdayBonus   *int                `yaml:"weekday_bonus"`
		WeekendBonus   *int                `yaml:"weekend_bonus"`
		KBMatchWeight  *int                `yaml:"kb_match_weight"`
		WhiteThreshold *int                `yaml:"white_threshold"`
		GrayLower      *int                `yaml:"gray_lower"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return rules, fmt.Errorf("parse rules file: %w", err)
	}

	if overlay.Keywords != nil {
		rules.Keywords = overlay.Keywords
	}
	if overlay.Blacklist != nil {
		rules.Blacklist = overlay.Blacklist
	}
	if overlay.FileWeights != nil {
		rules.FileWeights = overlay.FileWeights
	}
	setInt(&rules.WorkStartHour, overlay.WorkStartHour)
	setInt(&rules.WorkEndHour, overlay.WorkEndHour)
	setInt(&rules.WeekdayBonus, overlay.WeekdayBonus)
	setInt(&rules.WeekendBonus, overlay.WeekendBonus)
	setInt(&rules.KBMatchWeight, overlay.KBMatchWeight)
	setInt(&rules.WhiteThreshold, overlay.WhiteThreshold)
	setInt(&rules.GrayLower, overlay.GrayLower)

	if err := rules.Validate(); err != nil {
		return rules, err
	}
	return rules, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
