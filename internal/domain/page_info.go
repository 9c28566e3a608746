package domain

// PageInfo 是解析创意工坊页面得到的结构化结果（解析完成后不可变）。
//
// 约束：
// - ItemIDs 必须已去重并按字典序排序（同一页面两次解析输出一致）
// - SourceURL 必须写入实际请求的页面 URL（也是来源标记）
// - 字段允许为空，但 JSON 字段名对外稳定（--output 的调试输出依赖它）
type PageInfo struct {
	IsCollection   bool     `json:"is_collection"`
	ItemIDs        []ItemID `json:"item_ids"`
	AppID          string   `json:"app_id"`
	GameName       string   `json:"game_name"`
	CollectionName string   `json:"collection_name"`
	SourceURL      string   `json:"source_url"`
}
