package domain

import (
	"regexp"
	"sort"
	"strings"
)

// ItemID 是创意工坊物品的唯一主键（纯数字字符串，形如 "2872282653"）。
//
// 约束：要么得到合法 ID，要么失败；宁可丢弃，也不允许把页面杂讯当作物品。
type ItemID string

var itemIDRE = regexp.MustCompile(`^[0-9]{1,20}$`)

// ParseItemID 校验并解析物品 ID 字符串。
// 输入必须是十进制数字（来源通常是 URL 查询串或链接 href）。
func ParseItemID(s string) (ItemID, bool) {
	s = strings.TrimSpace(s)
	if !itemIDRE.MatchString(s) {
		return "", false
	}
	return ItemID(s), true
}

// SortItemIDs 去重并按字典序排序（返回新切片，不改动入参）。
// 页面上同一物品可能出现多个链接；输出必须与解析顺序无关。
func SortItemIDs(ids []ItemID) []ItemID {
	seen := make(map[ItemID]struct{}, len(ids))
	out := make([]ItemID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
